// Package fees resolves payment gateway fees and splits gross renewal amounts
// into fee, net and staff commission.
package fees

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
)

// Source records where a fee percentage came from.
type Source string

const (
	SourceConfigured Source = "configured"
	SourceFallback   Source = "fallback"
	SourceDefault    Source = "default"
	// SourceUnknown means no payment method was given at all.
	SourceUnknown Source = "unknown"
)

// DefaultMethod is assumed for renewals with activity but no recorded method.
const DefaultMethod = "stripe"

var (
	DefaultFeePercentage = decimal.NewFromInt(4)

	fallbackFees = []struct {
		key   string
		label string
		fee   decimal.Decimal
	}{
		{"hotmart", "Hotmart", decimal.RequireFromString("6.4")},
		{"stripe", "Stripe", decimal.RequireFromString("4.0")},
		{"transferencia", "Transferencia", decimal.Zero},
	}
)

// Resolution is the outcome of a fee lookup.
type Resolution struct {
	Percent decimal.Decimal `json:"percent"`
	Source  Source          `json:"source"`
	Label   string          `json:"label"`
}

// Estimated reports whether the percentage was not backed by a known method.
func (r Resolution) Estimated() bool {
	return r.Source == SourceDefault || r.Source == SourceUnknown
}

// Resolve finds the fee for a free-text payment method. Configured methods
// win on a case-insensitive substring match in either direction, then the
// built-in table, then the 4% default.
func Resolve(method string, methods []models.PaymentMethod) Resolution {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return Resolution{Percent: DefaultFeePercentage, Source: SourceUnknown, Label: "-"}
	}

	for _, pm := range methods {
		name := strings.ToLower(strings.TrimSpace(pm.Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, m) || strings.Contains(m, name) {
			return Resolution{Percent: pm.PlatformFeePercentage, Source: SourceConfigured, Label: pm.Name}
		}
	}

	for _, f := range fallbackFees {
		if strings.Contains(m, f.key) {
			return Resolution{Percent: f.fee, Source: SourceFallback, Label: f.label}
		}
	}

	return Resolution{Percent: DefaultFeePercentage, Source: SourceDefault, Label: strings.TrimSpace(method)}
}

// Breakdown splits a gross amount. Net is always Gross - Fee so the parts add
// up exactly after rounding.
type Breakdown struct {
	Gross             money.Cents     `json:"gross_cents"`
	FeePercent        decimal.Decimal `json:"fee_percent"`
	Fee               money.Cents     `json:"fee_cents"`
	Net               money.Cents     `json:"net_cents"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Commission        money.Cents     `json:"commission_cents"`
}

// Compute applies the gateway fee and then the commission rate to the net amount.
func Compute(gross money.Cents, feePercent, commissionPercent decimal.Decimal) Breakdown {
	fee := money.Percent(gross, feePercent)
	net := gross - fee
	return Breakdown{
		Gross:             gross,
		FeePercent:        feePercent,
		Fee:               fee,
		Net:               net,
		CommissionPercent: commissionPercent,
		Commission:        money.Percent(net, commissionPercent),
	}
}

// CommissionPercent returns the staff member's rate, or the 10% default.
func CommissionPercent(staff *models.User) decimal.Decimal {
	return staff.CommissionRate()
}
