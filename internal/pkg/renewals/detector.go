// Package renewals scans the client roster for renewal checkpoints due in a
// month, resolves what each renewal was worth and who earns commission on it.
package renewals

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/fees"
	"github.com/cuidarte/crm/internal/pkg/money"
)

type Status string

const (
	StatusRenewed    Status = "renewed"
	StatusAbandoned  Status = "abandoned"
	StatusNotRenewed Status = "not_renewed"
	StatusOverdue    Status = "overdue"
	StatusPending    Status = "pending"
)

// AmountSource records which field a renewal amount was taken from.
type AmountSource string

const (
	AmountFromPhase  AmountSource = "phase"
	AmountFromLegacy AmountSource = "legacy"
	AmountFromLink   AmountSource = "payment_link"
	AmountFromSale   AmountSource = "sale"
	AmountUnknown    AmountSource = "unknown"
)

// Sources are the lookup tables used to enrich renewal records.
type Sources struct {
	PaymentLinks   []models.PaymentLink
	Sales          []models.Sale
	PaymentMethods []models.PaymentMethod
	Staff          []models.User
}

// Record is a derived renewal checkpoint for one client. It is never persisted.
type Record struct {
	Client           *models.Client  `json:"client"`
	Phase            models.Phase    `json:"phase"`
	DueDate          time.Time       `json:"due_date"`
	Status           Status          `json:"status"`
	IsOverdue        bool            `json:"is_overdue"`
	IsContracted     bool            `json:"is_contracted"`
	Amount           money.Cents     `json:"amount_cents"`
	AmountSource     AmountSource    `json:"amount_source"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	ReceiptURL       string          `json:"receipt_url,omitempty"`
	Fee              fees.Resolution `json:"fee"`
	Breakdown        *fees.Breakdown `json:"breakdown,omitempty"`
	Estimated        bool            `json:"estimated"`
	Unresolved       bool            `json:"unresolved"`
	ConcurrentPhases bool            `json:"concurrent_phases,omitempty"`
}

// Ref is the ledger key of the checkpoint.
func (r *Record) Ref() string {
	return models.RenewalRef(r.Client.ID, r.Phase)
}

// Commissionable reports whether the record earns commission.
func (r *Record) Commissionable() bool {
	return r.Breakdown != nil
}

// Result holds the three lists produced by a monthly scan.
type Result struct {
	Monthly []Record         `json:"monthly"`
	Overdue []Record         `json:"overdue"`
	Churn   []*models.Client `json:"churn"`
}

// Detect scans clients for the period. A checkpoint matches when it is due
// within the month, or was due earlier and is still not contracted. Phases
// whose predecessor was never contracted are ignored.
func Detect(clients []*models.Client, period Period, src Sources) Result {
	var res Result
	start := period.Start()

	for _, c := range clients {
		var matches []models.Checkpoint
		for _, cp := range c.Program.Checkpoints() {
			if cp.DueDate == nil || !cp.PrevContracted {
				continue
			}
			due := civil(*cp.DueDate)
			if period.Contains(&due) || (due.Before(start) && !cp.Contracted) {
				matches = append(matches, cp)
			}
		}
		if len(matches) == 0 {
			continue
		}

		best := matches[0]
		for _, m := range matches[1:] {
			if m.Phase > best.Phase {
				best = m
			}
		}
		if len(matches) > 1 {
			phases := make([]string, len(matches))
			for i, m := range matches {
				phases[i] = string(m.Phase)
			}
			log.Warnf("[Renewals] client %s has concurrent due phases %s, keeping %s",
				c.ID, strings.Join(phases, ","), best.Phase)
		}

		rec := Record{
			Client:           c,
			Phase:            best.Phase,
			DueDate:          civil(*best.DueDate),
			IsContracted:     best.Contracted,
			ConcurrentPhases: len(matches) > 1,
		}

		if period.Contains(&rec.DueDate) {
			rec.Status = monthlyStatus(c, best.Contracted)
			enrich(&rec, best, src)
			res.Monthly = append(res.Monthly, rec)
			continue
		}

		// Past months only stay actionable while the client is active.
		if c.Status != models.CLIENT_STATUS_ACTIVE {
			continue
		}
		rec.Status = StatusOverdue
		rec.IsOverdue = true
		enrich(&rec, best, src)
		res.Overdue = append(res.Overdue, rec)
	}

	for _, c := range clients {
		if c.Status != models.CLIENT_STATUS_INACTIVE && c.Status != models.CLIENT_STATUS_DROPOUT {
			continue
		}
		if period.Contains(c.AbandonmentDate) || period.Contains(c.InactiveDate) {
			res.Churn = append(res.Churn, c)
		}
	}

	sortRecords(res.Monthly)
	sortRecords(res.Overdue)
	sort.SliceStable(res.Churn, func(i, j int) bool {
		return fold(res.Churn[i].DisplayName()) < fold(res.Churn[j].DisplayName())
	})
	return res
}

func monthlyStatus(c *models.Client, contracted bool) Status {
	switch {
	case contracted:
		return StatusRenewed
	case c.Status == models.CLIENT_STATUS_DROPOUT:
		return StatusAbandoned
	case c.Status == models.CLIENT_STATUS_INACTIVE, c.Status == models.CLIENT_STATUS_COMPLETED:
		return StatusNotRenewed
	default:
		return StatusPending
	}
}

// enrich resolves amount, payment method and the fee breakdown.
func enrich(rec *Record, cp models.Checkpoint, src Sources) {
	resolveAmount(rec, cp, src)

	method := rec.PaymentMethod
	if method == "" {
		method = rec.Client.RenewalPaymentMethod
	}
	if method == "" && (rec.IsContracted || rec.Amount > 0) {
		method = fees.DefaultMethod
		rec.Estimated = true
	}
	rec.PaymentMethod = method
	rec.Fee = fees.Resolve(method, src.PaymentMethods)
	if rec.Fee.Estimated() && (rec.IsContracted || rec.Amount > 0) {
		rec.Estimated = true
	}

	if rec.IsContracted && !rec.Unresolved {
		owner := OwnerOf(rec.Client, src.Staff)
		b := fees.Compute(rec.Amount, rec.Fee.Percent, fees.CommissionPercent(owner))
		rec.Breakdown = &b
	}
}

// resolveAmount walks the amount sources in priority order: phase fields,
// legacy renewal fields for the client's current phase (with the payment link
// price as a guess), then the sales feed.
func resolveAmount(rec *Record, cp models.Checkpoint, src Sources) {
	c := rec.Client
	rec.Amount, rec.PaymentMethod, rec.ReceiptURL = cp.Amount, cp.PaymentMethod, cp.ReceiptURL
	if rec.Amount > 0 {
		rec.AmountSource = AmountFromPhase
		return
	}

	if rec.ReceiptURL == "" && strings.EqualFold(strings.TrimSpace(c.RenewalPhase), string(rec.Phase)) {
		rec.ReceiptURL = c.RenewalReceiptURL
		rec.PaymentMethod = c.RenewalPaymentMethod
		if c.RenewalAmountCents > 0 {
			rec.Amount = c.RenewalAmountCents
			rec.AmountSource = AmountFromLegacy
			return
		}
		if amount, ok := linkPrice(c.RenewalPaymentLink, src.PaymentLinks); ok {
			rec.Amount = amount
			rec.AmountSource = AmountFromLink
			return
		}
	}

	if sale := matchSale(c, rec.DueDate, src.Sales); sale != nil {
		rec.Amount = sale.SaleAmountCents
		rec.AmountSource = AmountFromSale
		if rec.ReceiptURL == "" {
			rec.ReceiptURL = sale.PaymentReceiptURL
		}
		return
	}

	rec.AmountSource = AmountUnknown
	rec.Unresolved = true
}

func linkPrice(url string, links []models.PaymentLink) (money.Cents, bool) {
	if url == "" {
		return 0, false
	}
	for _, l := range links {
		if l.URL != url {
			continue
		}
		amount, err := money.ParsePrice(l.Price)
		if err != nil || amount <= 0 {
			return 0, false
		}
		return amount, true
	}
	return 0, false
}

// matchSale finds a non-failed sale to the same email made in the renewal's
// month or the month before.
func matchSale(c *models.Client, due time.Time, sales []models.Sale) *models.Sale {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return nil
	}
	for i := range sales {
		s := &sales[i]
		if s.Status == models.SALE_STATUS_FAILED || s.SaleAmountCents <= 0 || s.SaleDate.IsZero() {
			continue
		}
		if strings.ToLower(strings.TrimSpace(s.ClientEmail)) != email {
			continue
		}
		if d := monthsBetween(due, s.SaleDate); d == 0 || d == 1 {
			return s
		}
	}
	return nil
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if an, bn := fold(a.Client.DisplayName()), fold(b.Client.DisplayName()); an != bn {
			return an < bn
		}
		return a.Phase < b.Phase
	})
}
