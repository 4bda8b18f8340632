package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/internal/pkg/money"
)

const (
	INVOICE_STATUS_PENDING  = "pending"
	INVOICE_STATUS_APPROVED = "approved"
	INVOICE_STATUS_PAID     = "paid"
	INVOICE_STATUS_REJECTED = "rejected"
)

var invoiceTransitions = map[string][]string{
	INVOICE_STATUS_PENDING:  {INVOICE_STATUS_APPROVED, INVOICE_STATUS_PAID, INVOICE_STATUS_REJECTED},
	INVOICE_STATUS_APPROVED: {INVOICE_STATUS_PAID, INVOICE_STATUS_REJECTED},
	// A corrected upload sends a rejected invoice back to review.
	INVOICE_STATUS_REJECTED: {INVOICE_STATUS_PENDING},
}

// StaffInvoice is an invoice a staff member uploads for a monthly period.
// Version is bumped on every status change and guards concurrent admin actions.
type StaffInvoice struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	StaffID     uuid.UUID   `gorm:"column:coach_id;type:uuid;not null;index" json:"staff_id"`
	StaffName   string      `gorm:"column:coach_name;type:varchar(150)" json:"staff_name"`
	PeriodDate  time.Time   `gorm:"type:date;not null;index" json:"period_date"`
	AmountCents money.Cents `gorm:"not null" json:"amount_cents"`
	Status      string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AdminNotes  string      `gorm:"type:text" json:"admin_notes,omitempty"`
	CoachNotes  string      `gorm:"type:text" json:"coach_notes,omitempty"`
	InvoiceURL  string      `gorm:"type:text" json:"invoice_url"`
	SubmittedAt time.Time   `gorm:"autoCreateTime" json:"submitted_at"`
	PaidAt      *time.Time  `gorm:"type:timestamptz" json:"paid_at,omitempty"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	Version     int         `gorm:"not null;default:1" json:"version"`
}

func (StaffInvoice) TableName() string {
	return "coach_invoices"
}

func (i *StaffInvoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Version == 0 {
		i.Version = 1
	}
	return nil
}

// CanTransition reports whether the invoice may move from its current status to next.
func (i *StaffInvoice) CanTransition(next string) bool {
	return CanTransitionInvoice(i.Status, next)
}

func CanTransitionInvoice(from, to string) bool {
	for _, s := range invoiceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsDeletable reports whether the owner may withdraw the invoice.
func (i *StaffInvoice) IsDeletable() bool {
	return i.Status == INVOICE_STATUS_PENDING || i.Status == INVOICE_STATUS_REJECTED
}
