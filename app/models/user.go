package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ROLE_ADMIN        = "admin"
	ROLE_SUPER_ADMIN  = "super_admin"
	ROLE_HEAD_COACH   = "head_coach"
	ROLE_COACH        = "coach"
	ROLE_CLOSER       = "closer"
	ROLE_SETTER       = "setter"
	ROLE_CONTABILIDAD = "contabilidad"
	ROLE_DIRECCION    = "direccion"
	ROLE_DOCTOR       = "doctor"
	ROLE_PSICOLOGO    = "psicologo"
	ROLE_DIETITIAN    = "dietitian"
	ROLE_RRSS         = "rrss"
	ROLE_CLIENT       = "client"
)

// DefaultCommissionPercentage applies to staff without a configured rate.
var DefaultCommissionPercentage = decimal.NewFromInt(10)

// User is a staff member (or client login) from the users table. Only the
// fields needed for commission settlement are mapped.
type User struct {
	ID                   uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Name                 string              `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email                string              `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Role                 string              `gorm:"type:varchar(50);default:'coach'" json:"role"`
	CommissionPercentage decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_percentage"`
	BankAccountHolder    string              `gorm:"type:varchar(200);default:null" json:"bank_account_holder,omitempty"`
	BankAccountIBAN      string              `gorm:"column:bank_account_iban;type:varchar(64);default:null" json:"bank_account_iban,omitempty"`
	BankName             string              `gorm:"type:varchar(150);default:null" json:"bank_name,omitempty"`
	TaxID                string              `gorm:"type:varchar(50);default:null" json:"tax_id,omitempty"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) Validate() error {
	return validator.New().Struct(u)
}

// CommissionRate returns the staff member's commission percentage, or the
// default when unset.
func (u *User) CommissionRate() decimal.Decimal {
	if u == nil || !u.CommissionPercentage.Valid {
		return DefaultCommissionPercentage
	}
	return u.CommissionPercentage.Decimal
}

// HasBankDetails reports whether the user configured any payout data.
func (u *User) HasBankDetails() bool {
	return u.BankAccountIBAN != "" || u.BankAccountHolder != ""
}
