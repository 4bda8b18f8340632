package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/internal/pkg/money"
)

const (
	CLIENT_STATUS_ACTIVE    = "active"
	CLIENT_STATUS_INACTIVE  = "inactive"
	CLIENT_STATUS_PAUSED    = "paused"
	CLIENT_STATUS_DROPOUT   = "dropout"
	CLIENT_STATUS_COMPLETED = "completed"
)

// Phase identifies a renewal checkpoint. F2 is the first renewal, due when
// the initial F1 period ends.
type Phase string

const (
	PhaseF2 Phase = "F2"
	PhaseF3 Phase = "F3"
	PhaseF4 Phase = "F4"
	PhaseF5 Phase = "F5"
)

// RenewalPhases lists checkpoints in contractual order.
var RenewalPhases = []Phase{PhaseF2, PhaseF3, PhaseF4, PhaseF5}

// ParsePhase accepts "F3", "f3" or "3".
func ParsePhase(s string) (Phase, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "F") {
		s = "F" + s
	}
	for _, p := range RenewalPhases {
		if Phase(s) == p {
			return p, true
		}
	}
	return Phase(s), false
}

// Client is a row of the clientes table restricted to lifecycle and renewal data.
type Client struct {
	ID                   uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName            string      `gorm:"type:varchar(120)" json:"first_name"`
	Surname              string      `gorm:"type:varchar(160)" json:"surname"`
	Name                 string      `gorm:"type:varchar(255)" json:"name"`
	Email                string      `gorm:"type:varchar(200);index" json:"email"`
	Status               string      `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CoachID              string      `gorm:"type:varchar(191);index" json:"coach_id"`
	PropertyCoach        string      `gorm:"type:varchar(191)" json:"property_coach,omitempty"`
	StartDate            *time.Time  `gorm:"type:date" json:"start_date,omitempty"`
	AbandonmentDate      *time.Time  `gorm:"type:date" json:"abandonment_date,omitempty"`
	InactiveDate         *time.Time  `gorm:"type:date" json:"inactive_date,omitempty"`
	RenewalPhase         string      `gorm:"type:varchar(10)" json:"renewal_phase,omitempty"`
	RenewalAmountCents   money.Cents `gorm:"not null;default:0" json:"renewal_amount_cents"`
	RenewalPaymentMethod string      `gorm:"type:varchar(50)" json:"renewal_payment_method,omitempty"`
	RenewalReceiptURL    string      `gorm:"type:text" json:"renewal_receipt_url,omitempty"`
	RenewalPaymentLink   string      `gorm:"type:text" json:"renewal_payment_link,omitempty"`
	Program              Program     `gorm:"embedded" json:"program"`
	CreatedAt            time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "clientes"
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DisplayName prefers the stored full name and falls back to first name + surname.
func (c *Client) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return strings.TrimSpace(c.FirstName + " " + c.Surname)
}

// Program holds the phase checkpoints. FnEndDate closes phase n, so the
// renewal into F(n+1) is due on that date.
type Program struct {
	F1EndDate *time.Time `gorm:"type:date" json:"f1_end_date,omitempty"`
	F2EndDate *time.Time `gorm:"type:date" json:"f2_end_date,omitempty"`
	F3EndDate *time.Time `gorm:"type:date" json:"f3_end_date,omitempty"`
	F4EndDate *time.Time `gorm:"type:date" json:"f4_end_date,omitempty"`

	RenewalF2Contracted bool `gorm:"default:false" json:"renewal_f2_contracted"`
	RenewalF3Contracted bool `gorm:"default:false" json:"renewal_f3_contracted"`
	RenewalF4Contracted bool `gorm:"default:false" json:"renewal_f4_contracted"`
	RenewalF5Contracted bool `gorm:"default:false" json:"renewal_f5_contracted"`

	F2AmountCents money.Cents `gorm:"not null;default:0" json:"f2_amount_cents"`
	F3AmountCents money.Cents `gorm:"not null;default:0" json:"f3_amount_cents"`
	F4AmountCents money.Cents `gorm:"not null;default:0" json:"f4_amount_cents"`
	F5AmountCents money.Cents `gorm:"not null;default:0" json:"f5_amount_cents"`

	F2PaymentMethod string `gorm:"type:varchar(50)" json:"f2_payment_method,omitempty"`
	F3PaymentMethod string `gorm:"type:varchar(50)" json:"f3_payment_method,omitempty"`
	F4PaymentMethod string `gorm:"type:varchar(50)" json:"f4_payment_method,omitempty"`
	F5PaymentMethod string `gorm:"type:varchar(50)" json:"f5_payment_method,omitempty"`

	F2ReceiptURL string `gorm:"type:text" json:"f2_receipt_url,omitempty"`
	F3ReceiptURL string `gorm:"type:text" json:"f3_receipt_url,omitempty"`
	F4ReceiptURL string `gorm:"type:text" json:"f4_receipt_url,omitempty"`
	F5ReceiptURL string `gorm:"type:text" json:"f5_receipt_url,omitempty"`
}

// Checkpoint is one renewal milestone with its stored payment data.
type Checkpoint struct {
	Phase          Phase
	DueDate        *time.Time
	Contracted     bool
	PrevContracted bool
	Amount         money.Cents
	PaymentMethod  string
	ReceiptURL     string
}

// Checkpoints returns F2..F5 in order. F2 has no predecessor and is always
// treated as following a contracted phase.
func (p Program) Checkpoints() []Checkpoint {
	return []Checkpoint{
		{PhaseF2, p.F1EndDate, p.RenewalF2Contracted, true, p.F2AmountCents, p.F2PaymentMethod, p.F2ReceiptURL},
		{PhaseF3, p.F2EndDate, p.RenewalF3Contracted, p.RenewalF2Contracted, p.F3AmountCents, p.F3PaymentMethod, p.F3ReceiptURL},
		{PhaseF4, p.F3EndDate, p.RenewalF4Contracted, p.RenewalF3Contracted, p.F4AmountCents, p.F4PaymentMethod, p.F4ReceiptURL},
		{PhaseF5, p.F4EndDate, p.RenewalF5Contracted, p.RenewalF4Contracted, p.F5AmountCents, p.F5PaymentMethod, p.F5ReceiptURL},
	}
}

// Checkpoint returns the checkpoint for phase, if it is a renewal phase.
func (p Program) Checkpoint(phase Phase) (Checkpoint, bool) {
	for _, cp := range p.Checkpoints() {
		if cp.Phase == phase {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// PhaseColumns returns the clientes columns backing a phase's amount, payment
// method and receipt. Unknown phases map to the legacy renewal_* columns.
func PhaseColumns(phase Phase) (amount, method, receipt string) {
	switch phase {
	case PhaseF2, PhaseF3, PhaseF4, PhaseF5:
		n := strings.ToLower(string(phase))
		return n + "_amount_cents", n + "_payment_method", n + "_receipt_url"
	default:
		return "renewal_amount_cents", "renewal_payment_method", "renewal_receipt_url"
	}
}
