// Package settlement reconciles a staff invoice with the commissions earned in
// its period and records the payout.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/renewals"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrStaffNotFound        = errors.New("staff member not found")
	ErrNoteRequired         = errors.New("a note is required to reject an invoice")
	ErrVersionConflict      = errors.New("invoice was modified concurrently")
	ErrSettlementInProgress = errors.New("settlement already in progress for this invoice")
	ErrNeedsConfirmation    = errors.New("settlement contains estimated or unresolved amounts")
	ErrIdempotencyKeyReused = errors.New("idempotency key already used for another invoice")
	ErrInvalidTransition    = models.ErrInvalidTransition
)

const lockTTL = 30 * time.Second

var validate = validator.New()

// Locker serialises settlement of one invoice across instances.
type Locker interface {
	// Acquire returns ok=false when the key is held elsewhere.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Service provides invoice settlement.
type Service struct {
	repo   Repository
	locker Locker
	now    func() time.Time
}

// NewService creates a settlement service. locker may be nil.
func NewService(repo Repository, locker Locker) *Service {
	return &Service{repo: repo, locker: locker, now: time.Now}
}

// NewServiceFromDB creates a settlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, locker Locker) *Service {
	return NewService(NewRepository(db), locker)
}

// Preview lists the commissionable events of staff for period.
func (s *Service) Preview(ctx context.Context, staff *models.User, period renewals.Period) (*Preview, error) {
	return buildPreview(ctx, s.repo, staff, period)
}

type InvoicePreview struct {
	Invoice  *models.StaffInvoice `json:"invoice"`
	Preview  *Preview             `json:"preview"`
	Mismatch Mismatch             `json:"mismatch"`
}

// PreviewInvoice previews the invoice's period and compares the totals.
func (s *Service) PreviewInvoice(ctx context.Context, invoiceID uuid.UUID) (*InvoicePreview, error) {
	inv, staff, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	p, err := buildPreview(ctx, s.repo, staff, renewals.PeriodOf(inv.PeriodDate))
	if err != nil {
		return nil, err
	}
	return &InvoicePreview{Invoice: inv, Preview: p, Mismatch: CheckMismatch(inv.AmountCents, p.Total)}, nil
}

type ConfirmRequest struct {
	InvoiceID      uuid.UUID
	ActorID        uuid.UUID
	Method         string `validate:"required,max=50"`
	Reference      string `validate:"max=120"`
	Notes          string `validate:"max=2000"`
	PaidDate       time.Time
	IdempotencyKey string `validate:"max=100"`
	// ExpectedVersion is checked against the invoice when non-zero.
	ExpectedVersion int `validate:"gte=0"`
	AcceptEstimates bool
}

type ConfirmResult struct {
	Invoice    *models.StaffInvoice `json:"invoice"`
	Payment    *models.StaffPayment `json:"payment"`
	Preview    *Preview             `json:"preview,omitempty"`
	Mismatch   Mismatch             `json:"mismatch"`
	Inserted   int                  `json:"inserted"`
	MarkedPaid int64                `json:"marked_paid"`
	Skipped    int                  `json:"skipped"`
	Replayed   bool                 `json:"replayed"`
}

// Confirm pays an invoice. Missing renewal rows are written to the ledger, the
// preview's unpaid rows are marked paid, the invoice moves to paid and the
// payout is recorded, all in one transaction. Repeating a request with the
// same idempotency key returns the stored outcome.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	req.Method = strings.TrimSpace(req.Method)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.InvoiceID == uuid.Nil {
		return nil, errors.New("invoice_id is required")
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	if res, err := s.replay(ctx, req); res != nil || err != nil {
		return res, err
	}

	if s.locker != nil {
		key := "settlement:invoice:" + req.InvoiceID.String()
		release, ok, err := s.locker.Acquire(ctx, key, lockTTL)
		switch {
		case err != nil:
			log.Warnf("[Settlement] lock %s unavailable, continuing without it: %v", key, err)
		case !ok:
			return nil, ErrSettlementInProgress
		default:
			defer release()
		}
	}

	inv, staff, err := s.loadInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.CanTransition(models.INVOICE_STATUS_PAID) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, models.INVOICE_STATUS_PAID)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != inv.Version {
		return nil, ErrVersionConflict
	}

	period := renewals.PeriodOf(inv.PeriodDate)
	preview, err := buildPreview(ctx, s.repo, staff, period)
	if err != nil {
		return nil, err
	}
	if preview.NeedsReview() && !req.AcceptEstimates {
		return nil, fmt.Errorf("%w: %d unresolved, %d estimated", ErrNeedsConfirmation, preview.Unresolved, preview.Estimated)
	}

	now := s.now()
	paidDate := req.PaidDate
	if paidDate.IsZero() {
		paidDate = now
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = "Pago factura " + period.String()
	}
	key := req.IdempotencyKey
	invoiceID := inv.ID
	payment := &models.StaffPayment{
		StaffID:         staff.ID,
		InvoiceID:       &invoiceID,
		AmountCents:     inv.AmountCents,
		Currency:        "EUR",
		Status:          models.PAYMENT_STATUS_COMPLETED,
		PaymentDate:     paidDate,
		PaymentMethod:   req.Method,
		ReferenceNumber: strings.TrimSpace(req.Reference),
		Notes:           notes,
		Period:          period.String(),
		IdempotencyKey:  &key,
	}
	result := &ConfirmResult{Payment: payment, Preview: preview, Mismatch: CheckMismatch(inv.AmountCents, preview.Total)}

	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		refs := make([]string, 0, len(preview.Items))
		for _, it := range preview.Items {
			if !it.Persisted {
				refs = append(refs, it.Ref)
			}
		}
		existing, err := tx.ExistingRenewalRefs(ctx, refs)
		if err != nil {
			return err
		}

		var rows []models.Sale
		var unpaid []uuid.UUID
		for _, it := range preview.Items {
			if it.Persisted {
				if it.adoptRef {
					if err := tx.AdoptRenewalRef(ctx, *it.SaleID, it.Ref); err != nil {
						return fmt.Errorf("adopt renewal ref %s: %w", it.Ref, err)
					}
				}
				if !it.CommissionPaid {
					unpaid = append(unpaid, *it.SaleID)
				}
				continue
			}
			if it.Unresolved || existing[it.Ref] {
				result.Skipped++
				continue
			}
			rows = append(rows, ledgerRow(it, staff.ID, invoiceID))
		}

		if err := tx.InsertSales(ctx, rows); err != nil {
			return fmt.Errorf("insert renewal sales: %w", err)
		}
		result.Inserted = len(rows)

		marked, err := tx.MarkCommissionPaid(ctx, unpaid, invoiceID)
		if err != nil {
			return fmt.Errorf("mark commissions paid: %w", err)
		}
		result.MarkedPaid = marked

		n, err := tx.UpdateInvoice(ctx, invoiceID, inv.Version, map[string]interface{}{
			"status":  models.INVOICE_STATUS_PAID,
			"paid_at": now,
			"version": inv.Version + 1,
		})
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if n == 0 {
			return ErrVersionConflict
		}

		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	inv.Status = models.INVOICE_STATUS_PAID
	inv.PaidAt = &now
	inv.Version++
	result.Invoice = inv

	log.Infof("[Settlement] invoice %s paid by %s: %d inserted, %d marked, %d skipped, total %s",
		invoiceID, req.ActorID, result.Inserted, result.MarkedPaid, result.Skipped, preview.Total)
	if result.Mismatch.Flagged {
		log.Warnf("[Settlement] invoice %s amount %s differs from computed %s",
			invoiceID, inv.AmountCents, preview.Total)
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	prev, err := s.repo.FindPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if prev.InvoiceID == nil || *prev.InvoiceID != req.InvoiceID {
		return nil, ErrIdempotencyKeyReused
	}
	inv, err := s.repo.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	return &ConfirmResult{
		Invoice:  inv,
		Payment:  prev,
		Replayed: true,
	}, nil
}

func ledgerRow(it Item, staffID, invoiceID uuid.UUID) models.Sale {
	rec := it.record
	ref := it.Ref
	clientID := rec.Client.ID
	first, last := rec.Client.FirstName, rec.Client.Surname
	if strings.TrimSpace(first) == "" {
		first = rec.Client.DisplayName()
	}
	return models.Sale{
		CloserID:              staffID,
		ClientID:              &clientID,
		ClientFirstName:       first,
		ClientLastName:        last,
		ClientEmail:           rec.Client.Email,
		SaleAmountCents:       it.Amount,
		CommissionAmountCents: it.Commission,
		SaleDate:              it.Date,
		Status:                models.SALE_STATUS_WON,
		Type:                  models.SALE_TYPE_RENEWAL,
		CommissionPaid:        true,
		SettledInvoiceID:      &invoiceID,
		SourceRenewalRef:      &ref,
		PaymentReceiptURL:     rec.ReceiptURL,
		Notes:                 fmt.Sprintf("Renewal %s settled with invoice %s", it.Phase, invoiceID),
	}
}

type RejectRequest struct {
	InvoiceID       uuid.UUID
	ActorID         uuid.UUID
	Note            string `validate:"required,max=2000"`
	ExpectedVersion int    `validate:"gte=0"`
}

// Reject returns an invoice to its owner. The ledger is left untouched.
func (s *Service) Reject(ctx context.Context, req RejectRequest) (*models.StaffInvoice, error) {
	req.Note = strings.TrimSpace(req.Note)
	if req.Note == "" {
		return nil, ErrNoteRequired
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if !inv.CanTransition(models.INVOICE_STATUS_REJECTED) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, models.INVOICE_STATUS_REJECTED)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != inv.Version {
		return nil, ErrVersionConflict
	}

	n, err := s.repo.UpdateInvoice(ctx, inv.ID, inv.Version, map[string]interface{}{
		"status":      models.INVOICE_STATUS_REJECTED,
		"admin_notes": req.Note,
		"version":     inv.Version + 1,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrVersionConflict
	}

	inv.Status = models.INVOICE_STATUS_REJECTED
	inv.AdminNotes = req.Note
	inv.Version++
	log.Infof("[Settlement] invoice %s rejected by %s", inv.ID, req.ActorID)
	return inv, nil
}

func (s *Service) loadInvoice(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, *models.User, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvoiceNotFound
		}
		return nil, nil, err
	}
	staff, err := s.repo.GetUser(ctx, inv.StaffID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrStaffNotFound
		}
		return nil, nil, err
	}
	return inv, staff, nil
}
