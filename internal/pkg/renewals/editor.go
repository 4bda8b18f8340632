package renewals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/money"
	"github.com/cuidarte/crm/internal/pkg/upload"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrUnsupportedFile = errors.New("unsupported receipt file type")
	ErrEmptyFile       = errors.New("empty file")
)

// ClientStore reads and patches roster rows.
type ClientStore interface {
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	UpdateClientColumns(ctx context.Context, id uuid.UUID, columns map[string]interface{}) error
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Editor applies manual corrections to a client's renewal data.
type Editor struct {
	store ClientStore
	files Uploader
	now   func() time.Time
}

func NewEditor(store ClientStore, files Uploader) *Editor {
	return &Editor{store: store, files: files, now: time.Now}
}

// UpdateAmount sets the amount and payment method of a phase. F2..F5 write the
// phase columns, any other phase label writes the legacy renewal columns.
func (e *Editor) UpdateAmount(ctx context.Context, clientID uuid.UUID, phase, amountText, method string) (*models.Client, error) {
	amount, err := money.ParseAmount(amountText)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", amountText, err)
	}
	p, _ := models.ParsePhase(phase)
	amountCol, methodCol, _ := models.PhaseColumns(p)

	return e.patch(ctx, clientID, map[string]interface{}{
		amountCol: amount,
		methodCol: strings.TrimSpace(method),
	})
}

// ClearAmount resets a phase amount and payment method. The receipt is kept.
func (e *Editor) ClearAmount(ctx context.Context, clientID uuid.UUID, phase string) (*models.Client, error) {
	p, _ := models.ParsePhase(phase)
	amountCol, methodCol, _ := models.PhaseColumns(p)

	return e.patch(ctx, clientID, map[string]interface{}{
		amountCol: money.Cents(0),
		methodCol: "",
	})
}

// AttachReceipt uploads a payment receipt and links it to the phase.
func (e *Editor) AttachReceipt(ctx context.Context, clientID uuid.UUID, phase, filename string, body io.Reader, size int64) (*models.Client, error) {
	if size <= 0 {
		return nil, ErrEmptyFile
	}
	contentType, body, err := upload.Sniff(filename, upload.Receipts, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, err := e.load(ctx, clientID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("receipts/renewal_receipt_%s_%d%s", clientID, e.now().Unix(), ext)
	url, err := e.files.Upload(ctx, key, body, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload receipt: %w", err)
	}

	p, _ := models.ParsePhase(phase)
	_, _, receiptCol := models.PhaseColumns(p)
	log.Infof("[Renewals] receipt for client %s phase %s stored at %s", clientID, p, key)
	return e.patch(ctx, clientID, map[string]interface{}{receiptCol: url})
}

func (e *Editor) patch(ctx context.Context, clientID uuid.UUID, cols map[string]interface{}) (*models.Client, error) {
	if err := e.store.UpdateClientColumns(ctx, clientID, cols); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("update client %s: %w", clientID, err)
	}
	return e.load(ctx, clientID)
}

func (e *Editor) load(ctx context.Context, clientID uuid.UUID) (*models.Client, error) {
	c, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return c, nil
}
