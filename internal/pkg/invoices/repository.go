package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
)

// Filter narrows an invoice listing. Zero values match everything.
type Filter struct {
	StaffID *uuid.UUID
	Status  string
	Month   int
	Year    int
	Role    string
}

// View is an invoice joined with the payout data of its owner.
type View struct {
	models.StaffInvoice
	StaffRole         string `json:"staff_role"`
	StaffEmail        string `json:"staff_email"`
	BankAccountHolder string `json:"bank_account_holder,omitempty"`
	BankAccountIBAN   string `gorm:"column:bank_account_iban" json:"bank_account_iban,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	TaxID             string `json:"tax_id,omitempty"`
}

// Repository provides DB operations used by the invoice service.
type Repository interface {
	Create(ctx context.Context, inv *models.StaffInvoice) error
	Get(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, error)
	List(ctx context.Context, f Filter) ([]View, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Update applies fields only while the stored version equals version.
	Update(ctx context.Context, id uuid.UUID, version int, fields map[string]interface{}) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an invoice repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, inv *models.StaffInvoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, error) {
	var inv models.StaffInvoice
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) List(ctx context.Context, f Filter) ([]View, error) {
	q := r.db.WithContext(ctx).
		Table("coach_invoices AS ci").
		Select(`ci.*, u.role AS staff_role, u.email AS staff_email, u.bank_account_holder,
			u.bank_account_iban, u.bank_name, u.tax_id`).
		Joins("LEFT JOIN users u ON u.id = ci.coach_id")

	if f.StaffID != nil {
		q = q.Where("ci.coach_id = ?", *f.StaffID)
	}
	if f.Status != "" {
		q = q.Where("ci.status = ?", f.Status)
	}
	if f.Role != "" {
		q = q.Where("u.role = ?", f.Role)
	}
	switch {
	case f.Year > 0 && f.Month > 0:
		start := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("ci.period_date >= ? AND ci.period_date < ?", start, start.AddDate(0, 1, 0))
	case f.Year > 0:
		start := time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("ci.period_date >= ? AND ci.period_date < ?", start, start.AddDate(1, 0, 0))
	case f.Month > 0:
		q = q.Where("EXTRACT(MONTH FROM ci.period_date) = ?", f.Month)
	}

	var out []View
	err := q.Order("ci.period_date DESC, ci.submitted_at DESC").Scan(&out).Error
	return out, err
}

func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.StaffInvoice{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) Update(ctx context.Context, id uuid.UUID, version int, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.StaffInvoice{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	return res.RowsAffected, res.Error
}
