package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/internal/pkg/money"
)

const (
	SALE_STATUS_WON     = "won"
	SALE_STATUS_PENDING = "pending"
	SALE_STATUS_FAILED  = "failed"

	SALE_TYPE_SALE    = "sale"
	SALE_TYPE_RENEWAL = "renewal"

	// Rows written before renewals carried a type used this last name marker.
	legacyRenewalLastName = "(Renovación)"
)

// Sale is a row of the sales ledger, the system of record for commission payouts.
// SourceRenewalRef links rows generated from a renewal checkpoint back to it.
type Sale struct {
	ID                    uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CloserID              uuid.UUID   `gorm:"type:uuid;not null;index:idx_sales_closer_date,priority:1" json:"closer_id"`
	ClientID              *uuid.UUID  `gorm:"type:uuid;index" json:"client_id,omitempty"`
	ClientFirstName       string      `gorm:"type:varchar(120)" json:"client_first_name"`
	ClientLastName        string      `gorm:"type:varchar(160)" json:"client_last_name"`
	ClientEmail           string      `gorm:"type:varchar(200);index" json:"client_email"`
	SaleAmountCents       money.Cents `gorm:"not null;default:0" json:"sale_amount_cents"`
	CommissionAmountCents money.Cents `gorm:"not null;default:0" json:"commission_amount_cents"`
	SaleDate              time.Time   `gorm:"type:date;not null;index:idx_sales_closer_date,priority:2" json:"sale_date"`
	Status                string      `gorm:"type:varchar(20);not null;default:'won'" json:"status"`
	Type                  string      `gorm:"type:varchar(30);not null;default:'sale'" json:"type"`
	CommissionPaid        bool        `gorm:"not null;default:false" json:"commission_paid"`
	SettledInvoiceID      *uuid.UUID  `gorm:"type:uuid;index" json:"settled_invoice_id,omitempty"`
	SourceRenewalRef      *string     `gorm:"type:varchar(80);uniqueIndex" json:"source_renewal_ref,omitempty"`
	PaymentReceiptURL     string      `gorm:"type:text" json:"payment_receipt_url,omitempty"`
	Notes                 string      `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt             time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (Sale) TableName() string {
	return "sales"
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsRenewal recognises renewal rows, including legacy ones without a type.
func (s *Sale) IsRenewal() bool {
	if s.ClientLastName == legacyRenewalLastName {
		return true
	}
	t := strings.ToLower(s.Type)
	return strings.Contains(t, "renewal") || strings.Contains(t, "renovación") || strings.Contains(t, "renovacion")
}

// ClientName joins first and last name.
func (s *Sale) ClientName() string {
	return strings.TrimSpace(s.ClientFirstName + " " + s.ClientLastName)
}

// RenewalRef builds the ledger key for a client's renewal checkpoint.
func RenewalRef(clientID uuid.UUID, phase Phase) string {
	return clientID.String() + ":" + string(phase)
}
