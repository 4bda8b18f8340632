package permissions

import (
	"strings"

	"github.com/cuidarte/crm/app/models"
)

type Capability string

const (
	// ViewAllStaff lists every staff member's invoices, renewals and payouts.
	ViewAllStaff         Capability = "view_all_staff"
	SettleInvoices       Capability = "settle_invoices"
	ManagePaymentMethods Capability = "manage_payment_methods"
	EditRenewals         Capability = "edit_renewals"
	SubmitInvoices       Capability = "submit_invoices"
	ViewPaymentHistory   Capability = "view_payment_history"
)

var accounting = []Capability{ViewAllStaff, SettleInvoices, ManagePaymentMethods, EditRenewals, SubmitInvoices, ViewPaymentHistory}

var roleCapabilities = map[string][]Capability{
	models.ROLE_SUPER_ADMIN:  accounting,
	models.ROLE_ADMIN:        accounting,
	models.ROLE_CONTABILIDAD: accounting,
	models.ROLE_DIRECCION:    accounting,
	models.ROLE_HEAD_COACH:   {EditRenewals, SubmitInvoices},
	models.ROLE_COACH:        {EditRenewals, SubmitInvoices},
	models.ROLE_CLOSER:       {SubmitInvoices},
	models.ROLE_SETTER:       {SubmitInvoices},
	models.ROLE_DOCTOR:       {SubmitInvoices},
	models.ROLE_PSICOLOGO:    {SubmitInvoices},
	models.ROLE_DIETITIAN:    {SubmitInvoices},
	models.ROLE_RRSS:         {SubmitInvoices},
}

// Can reports whether role grants capability. Unknown roles grant nothing.
func Can(role string, c Capability) bool {
	for _, have := range roleCapabilities[strings.ToLower(strings.TrimSpace(role))] {
		if have == c {
			return true
		}
	}
	return false
}

// IsAdmin reports whether role belongs to the admin/accounting/direction group.
func IsAdmin(role string) bool {
	return Can(role, ViewAllStaff)
}
