package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethod is an admin-configured payment gateway with its platform fee.
type PaymentMethod struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name                  string          `gorm:"type:varchar(100);not null;uniqueIndex" json:"name" validate:"required,min=1,max=100"`
	PlatformFeePercentage decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"platform_fee_percentage"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}

func (m *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

var (
	minFee = decimal.Zero
	maxFee = decimal.NewFromInt(100)
)

// Validate checks the name and that the fee is a percentage between 0 and 100.
func (m *PaymentMethod) Validate() error {
	if err := validator.New().Struct(m); err != nil {
		return err
	}
	if m.PlatformFeePercentage.LessThan(minFee) || m.PlatformFeePercentage.GreaterThan(maxFee) {
		return ErrInvalidFeePercentage
	}
	return nil
}
