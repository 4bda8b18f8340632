package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/internal/pkg/money"
)

const (
	PAYMENT_STATUS_PENDING   = "pending"
	PAYMENT_STATUS_COMPLETED = "completed"
	PAYMENT_STATUS_FAILED    = "failed"
)

// StaffPayment records a payout to a staff member. IdempotencyKey is unique so
// a repeated approval of the same invoice cannot record a second payment.
type StaffPayment struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	StaffID         uuid.UUID   `gorm:"type:uuid;not null;index" json:"staff_id"`
	InvoiceID       *uuid.UUID  `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	AmountCents     money.Cents `gorm:"not null" json:"amount_cents"`
	Currency        string      `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Status          string      `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentDate     time.Time   `gorm:"type:timestamptz;not null;index" json:"payment_date"`
	PaymentMethod   string      `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	ReferenceNumber string      `gorm:"type:varchar(120)" json:"reference_number,omitempty"`
	Notes           string      `gorm:"type:text" json:"notes,omitempty"`
	Period          string      `gorm:"type:varchar(7);index" json:"period"`
	IdempotencyKey  *string     `gorm:"type:varchar(100);uniqueIndex" json:"-"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`

	Staff *User `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
}

func (StaffPayment) TableName() string {
	return "staff_payments"
}

func (p *StaffPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
