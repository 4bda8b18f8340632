package renewals

import (
	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
)

// Metrics summarises a month of roster movement.
type Metrics struct {
	NewClients        int         `json:"new_clients"`
	Churn             int         `json:"churn"`
	NetGrowth         int         `json:"net_growth"`
	RenewalsTarget    int         `json:"renewals_target"`
	RenewalsCompleted int         `json:"renewals_completed"`
	RenewalsPending   int         `json:"renewals_pending"`
	RenewalsOverdue   int         `json:"renewals_overdue"`
	SuccessRate       int         `json:"success_rate"`
	RenewalsRevenue   money.Cents `json:"renewals_revenue_cents"`
}

func ComputeMetrics(clients []*models.Client, period Period, res Result) Metrics {
	m := Metrics{
		Churn:           len(res.Churn),
		RenewalsTarget:  len(res.Monthly),
		RenewalsOverdue: len(res.Overdue),
	}
	for _, c := range clients {
		if period.Contains(c.StartDate) {
			m.NewClients++
		}
	}
	m.NetGrowth = m.NewClients - m.Churn

	for _, r := range res.Monthly {
		if r.Status == StatusRenewed {
			m.RenewalsCompleted++
		}
		if r.IsContracted || r.Amount > 0 {
			m.RenewalsRevenue += r.Amount
		}
	}
	m.RenewalsPending = m.RenewalsTarget - m.RenewalsCompleted
	if m.RenewalsTarget > 0 {
		m.SuccessRate = (m.RenewalsCompleted*200 + m.RenewalsTarget) / (2 * m.RenewalsTarget)
	}
	return m
}

// AccountingView keeps only renewals with evidence of payment (contracted, an
// amount or a receipt) and drops the overdue list.
func AccountingView(res Result) Result {
	out := Result{Churn: res.Churn}
	for _, r := range res.Monthly {
		if r.IsContracted || r.Amount > 0 || r.ReceiptURL != "" {
			out.Monthly = append(out.Monthly, r)
		}
	}
	return out
}
