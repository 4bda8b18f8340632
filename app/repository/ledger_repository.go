package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
)

type paymentLinkRepository struct {
	db *gorm.DB
}

func NewPaymentLinkRepository(db *gorm.DB) PaymentLinkRepository {
	return &paymentLinkRepository{db: db}
}

func (r *paymentLinkRepository) List(ctx context.Context) ([]models.PaymentLink, error) {
	var links []models.PaymentLink
	err := r.db.WithContext(ctx).Find(&links).Error
	return links, err
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Where("sale_date >= ? AND sale_date < ?", from, to).
		Order("sale_date, id").
		Find(&sales).Error
	return sales, err
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// List returns payments newest first with the paid staff member preloaded.
func (r *paymentRepository) List(ctx context.Context, f PaymentFilter) ([]models.StaffPayment, error) {
	q := r.db.WithContext(ctx).Preload("Staff").Order("payment_date DESC")
	if from, to, ok := f.window(); ok {
		q = q.Where("payment_date >= ? AND payment_date < ?", from, to)
	}
	if f.StaffID != nil {
		q = q.Where("staff_id = ?", *f.StaffID)
	}
	var payments []models.StaffPayment
	err := q.Find(&payments).Error
	return payments, err
}

// window turns year/month into a half-open date range. A month without a
// year is ignored.
func (f PaymentFilter) window() (time.Time, time.Time, bool) {
	if f.Year <= 0 {
		return time.Time{}, time.Time{}, false
	}
	if f.Month >= 1 && f.Month <= 12 {
		from := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), true
	}
	from := time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0), true
}
