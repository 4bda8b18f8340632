package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
	"github.com/cuidarte/crm/internal/pkg/renewals"
)

// MismatchTolerance is the largest invoice/total difference accepted silently.
const MismatchTolerance money.Cents = 500

// legacyAmountTolerance bounds the amount drift between a renewal checkpoint
// and a ledger row written without a source_renewal_ref.
const legacyAmountTolerance money.Cents = 10

const (
	ITEM_TYPE_SALE    = "sale"
	ITEM_TYPE_RENEWAL = "renewal"
)

// Item is one commissionable event of a settlement period. Virtual items
// come from renewal checkpoints not yet written to the ledger.
type Item struct {
	SaleID         *uuid.UUID   `json:"sale_id,omitempty"`
	Ref            string       `json:"ref,omitempty"`
	Type           string       `json:"type"`
	ClientName     string       `json:"client_name"`
	Date           time.Time    `json:"date"`
	Amount         money.Cents  `json:"amount_cents"`
	Commission     money.Cents  `json:"commission_cents"`
	Persisted      bool         `json:"persisted"`
	CommissionPaid bool         `json:"commission_paid"`
	PaymentMethod  string       `json:"payment_method,omitempty"`
	Phase          models.Phase `json:"phase,omitempty"`
	Estimated      bool         `json:"estimated"`
	Unresolved     bool         `json:"unresolved"`

	record *renewals.Record
	sale   *models.Sale
	// adoptRef marks a ref-less ledger row matched to a renewal checkpoint.
	adoptRef bool
}

type Preview struct {
	StaffID    uuid.UUID   `json:"staff_id"`
	StaffName  string      `json:"staff_name"`
	Period     string      `json:"period"`
	Items      []Item      `json:"items"`
	Total      money.Cents `json:"total_cents"`
	Unresolved int         `json:"unresolved"`
	Estimated  int         `json:"estimated"`
}

// NeedsReview reports whether any item relies on an unknown amount or an
// assumed payment method.
func (p *Preview) NeedsReview() bool {
	return p.Unresolved > 0 || p.Estimated > 0
}

type Mismatch struct {
	InvoiceAmount money.Cents `json:"invoice_amount_cents"`
	Total         money.Cents `json:"total_cents"`
	Diff          money.Cents `json:"diff_cents"`
	Flagged       bool        `json:"flagged"`
}

// CheckMismatch compares the invoiced amount with the computed total. It is
// advisory and never blocks a payment.
func CheckMismatch(invoiceAmount, total money.Cents) Mismatch {
	diff := invoiceAmount - total
	return Mismatch{
		InvoiceAmount: invoiceAmount,
		Total:         total,
		Diff:          diff,
		Flagged:       diff.Abs() > MismatchTolerance,
	}
}

// buildPreview merges the staff member's ledger rows for the period with the
// renewals they earned that have no ledger row yet.
func buildPreview(ctx context.Context, repo Repository, staff *models.User, period renewals.Period) (*Preview, error) {
	ledger, err := repo.ListLedger(ctx, staff.ID, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	virtual, err := virtualRenewals(ctx, repo, staff, period)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(virtual))
	for i := range virtual {
		refs = append(refs, virtual[i].Ref())
	}
	existing, err := repo.ExistingRenewalRefs(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("lookup renewal refs: %w", err)
	}

	p := &Preview{StaffID: staff.ID, StaffName: staff.Name, Period: period.String()}
	for i := range ledger {
		s := &ledger[i]
		if s.Status == models.SALE_STATUS_FAILED {
			continue
		}
		id := s.ID
		it := Item{
			SaleID:         &id,
			Type:           ITEM_TYPE_SALE,
			ClientName:     s.ClientName(),
			Date:           s.SaleDate,
			Amount:         s.SaleAmountCents,
			Commission:     s.CommissionAmountCents,
			Persisted:      true,
			CommissionPaid: s.CommissionPaid,
			sale:           s,
		}
		if s.IsRenewal() {
			it.Type = ITEM_TYPE_RENEWAL
		}
		if s.SourceRenewalRef != nil {
			it.Ref = *s.SourceRenewalRef
		}
		p.Items = append(p.Items, it)
	}

	for i := range virtual {
		rec := &virtual[i]
		if existing[rec.Ref()] || adoptLegacyRow(p.Items, rec) {
			continue
		}
		it := Item{
			Ref:           rec.Ref(),
			Type:          ITEM_TYPE_RENEWAL,
			ClientName:    rec.Client.DisplayName(),
			Date:          rec.DueDate,
			Amount:        rec.Amount,
			PaymentMethod: rec.PaymentMethod,
			Phase:         rec.Phase,
			Estimated:     rec.Estimated,
			Unresolved:    rec.Unresolved,
			record:        rec,
		}
		if rec.Breakdown != nil {
			it.Commission = rec.Breakdown.Commission
		}
		if it.Estimated {
			p.Estimated++
		}
		if it.Unresolved {
			p.Unresolved++
		}
		p.Items = append(p.Items, it)
	}

	for _, it := range p.Items {
		p.Total += it.Commission
	}
	return p, nil
}

// adoptLegacyRow looks for a renewal row written without a source_renewal_ref
// that records rec: same client (or first name), same month and an amount
// within legacyAmountTolerance. A match takes over rec's ref.
func adoptLegacyRow(items []Item, rec *renewals.Record) bool {
	if rec.Amount <= 0 {
		return false
	}
	for i := range items {
		it := &items[i]
		if !it.Persisted || it.Ref != "" || it.sale == nil || !it.sale.IsRenewal() {
			continue
		}
		if !sameRenewal(it.sale, rec) {
			continue
		}
		it.Ref = rec.Ref()
		it.Phase = rec.Phase
		it.adoptRef = true
		return true
	}
	return false
}

func sameRenewal(s *models.Sale, rec *renewals.Record) bool {
	if s.SaleDate.Year() != rec.DueDate.Year() || s.SaleDate.Month() != rec.DueDate.Month() {
		return false
	}
	if (s.SaleAmountCents - rec.Amount).Abs() > legacyAmountTolerance {
		return false
	}
	if s.ClientID != nil {
		return *s.ClientID == rec.Client.ID
	}
	saleName := strings.ToLower(strings.TrimSpace(s.ClientFirstName))
	clientName := strings.ToLower(strings.TrimSpace(rec.Client.FirstName))
	if saleName == "" || clientName == "" {
		return false
	}
	return strings.Contains(saleName, clientName) || strings.Contains(clientName, saleName)
}

// virtualRenewals runs the detector over the roster and keeps the contracted
// renewals owned by staff.
func virtualRenewals(ctx context.Context, repo Repository, staff *models.User, period renewals.Period) ([]renewals.Record, error) {
	clients, err := repo.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	team, err := repo.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	methods, err := repo.ListPaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	links, err := repo.ListPaymentLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment links: %w", err)
	}
	sales, err := repo.ListSalesBetween(ctx, period.Prev().Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	res := renewals.Detect(clients, period, renewals.Sources{
		PaymentLinks:   links,
		Sales:          sales,
		PaymentMethods: methods,
		Staff:          team,
	})

	var out []renewals.Record
	for _, rec := range res.Monthly {
		if rec.Status != renewals.StatusRenewed {
			continue
		}
		owner := renewals.OwnerOf(rec.Client, team)
		if owner == nil || owner.ID != staff.ID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
