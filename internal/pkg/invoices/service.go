// Package invoices handles the monthly invoices staff members upload for
// their commissions.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
	"github.com/cuidarte/crm/internal/pkg/permissions"
	"github.com/cuidarte/crm/internal/pkg/upload"
)

var (
	ErrNotFound          = errors.New("invoice not found")
	ErrForbidden         = errors.New("not allowed to act on this invoice")
	ErrNotDeletable      = errors.New("only pending or rejected invoices can be deleted")
	ErrVersionConflict   = errors.New("invoice was modified concurrently")
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrNotPDF            = errors.New("invoice must be a PDF file")
	ErrEmptyFile         = errors.New("empty file")
)

var validate = validator.New()

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// remover is implemented by stores that can delete an object again.
type remover interface {
	Delete(ctx context.Context, key string) error
}

type Service struct {
	repo  Repository
	files Uploader
	now   func() time.Time
}

func NewService(repo Repository, files Uploader) *Service {
	return &Service{repo: repo, files: files, now: time.Now}
}

func NewServiceFromDB(db *gorm.DB, files Uploader) *Service {
	return NewService(NewRepository(db), files)
}

type SubmitRequest struct {
	Month    int    `validate:"required,min=1,max=12"`
	Year     int    `validate:"required,min=2000,max=2100"`
	Amount   string `validate:"required,max=32"`
	Notes    string `validate:"max=2000"`
	FileName string `validate:"required"`
	File     io.Reader
	Size     int64
}

// Submit uploads the PDF and records a pending invoice for the month. When
// replaces is set, a rejected invoice is corrected in place instead.
func (s *Service) Submit(ctx context.Context, staff *models.User, req SubmitRequest, replaces *uuid.UUID) (*models.StaffInvoice, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Size <= 0 || req.File == nil {
		return nil, ErrEmptyFile
	}
	contentType, file, err := upload.Sniff(req.FileName, upload.PDF, req.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	amount, err := money.ParseInput(req.Amount)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("amount %q: %w", req.Amount, money.ErrInvalidAmount)
	}

	var existing *models.StaffInvoice
	if replaces != nil {
		existing, err = s.owned(ctx, staff, *replaces)
		if err != nil {
			return nil, err
		}
		if !existing.CanTransition(models.INVOICE_STATUS_PENDING) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, models.INVOICE_STATUS_PENDING)
		}
	}

	period := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("invoices/%s/%04d_%02d_%d.pdf", staff.ID, req.Year, req.Month, s.now().Unix())
	url, err := s.files.Upload(ctx, key, file, req.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload invoice: %w", err)
	}
	notes := strings.TrimSpace(req.Notes)

	if existing != nil {
		n, err := s.repo.Update(ctx, existing.ID, existing.Version, map[string]interface{}{
			"amount_cents": amount,
			"period_date":  period,
			"invoice_url":  url,
			"status":       models.INVOICE_STATUS_PENDING,
			"coach_notes":  notes,
			"version":      existing.Version + 1,
		})
		if err != nil {
			s.discard(ctx, key)
			return nil, err
		}
		if n == 0 {
			s.discard(ctx, key)
			return nil, ErrVersionConflict
		}
		log.Infof("[Invoices] %s resubmitted invoice %s for %s", staff.ID, existing.ID, period.Format("2006-01"))
		return s.repo.Get(ctx, existing.ID)
	}

	inv := &models.StaffInvoice{
		StaffID:     staff.ID,
		StaffName:   staff.Name,
		PeriodDate:  period,
		AmountCents: amount,
		Status:      models.INVOICE_STATUS_PENDING,
		CoachNotes:  notes,
		InvoiceURL:  url,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	log.Infof("[Invoices] %s submitted invoice %s for %s (%s)", staff.ID, inv.ID, period.Format("2006-01"), amount)
	return inv, nil
}

// List returns invoices visible to viewer. Staff without the accounting
// capability only ever see their own.
func (s *Service) List(ctx context.Context, viewer *models.User, f Filter) ([]View, error) {
	if f.Month < 0 || f.Month > 12 {
		return nil, fmt.Errorf("invalid month %d", f.Month)
	}
	if !permissions.IsAdmin(viewer.Role) {
		id := viewer.ID
		f.StaffID = &id
		f.Role = ""
	}
	return s.repo.List(ctx, f)
}

// Delete withdraws an invoice. Only its owner may do so, and only before payment.
func (s *Service) Delete(ctx context.Context, viewer *models.User, id uuid.UUID) error {
	inv, err := s.owned(ctx, viewer, id)
	if err != nil {
		return err
	}
	if !inv.IsDeletable() {
		return ErrNotDeletable
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	log.Infof("[Invoices] %s deleted invoice %s", viewer.ID, id)
	return nil
}

// Review marks a pending invoice as approved.
func (s *Service) Review(ctx context.Context, actor *models.User, id uuid.UUID, expectedVersion int) (*models.StaffInvoice, error) {
	if !permissions.Can(actor.Role, permissions.SettleInvoices) {
		return nil, ErrForbidden
	}
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.INVOICE_STATUS_PENDING || !inv.CanTransition(models.INVOICE_STATUS_APPROVED) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, models.INVOICE_STATUS_APPROVED)
	}
	if expectedVersion != 0 && expectedVersion != inv.Version {
		return nil, ErrVersionConflict
	}
	n, err := s.repo.Update(ctx, id, inv.Version, map[string]interface{}{
		"status":  models.INVOICE_STATUS_APPROVED,
		"version": inv.Version + 1,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrVersionConflict
	}
	inv.Status = models.INVOICE_STATUS_APPROVED
	inv.Version++
	log.Infof("[Invoices] %s approved invoice %s", actor.ID, id)
	return inv, nil
}

// discard removes an uploaded file whose invoice row was never written.
func (s *Service) discard(ctx context.Context, key string) {
	rm, ok := s.files.(remover)
	if !ok {
		return
	}
	if err := rm.Delete(ctx, key); err != nil {
		log.Warnf("[Invoices] could not remove orphaned upload %s: %v", key, err)
	}
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Service) owned(ctx context.Context, viewer *models.User, id uuid.UUID) (*models.StaffInvoice, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.StaffID != viewer.ID {
		return nil, ErrForbidden
	}
	return inv, nil
}
