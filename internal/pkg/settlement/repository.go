package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
)

// Repository provides DB operations used by the settlement service.
type Repository interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	ListPaymentLinks(ctx context.Context) ([]models.PaymentLink, error)
	// ListSalesBetween returns every sale dated in [from, to).
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error)
	// ListLedger returns the staff member's sales dated in [from, to).
	ListLedger(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Sale, error)
	ExistingRenewalRefs(ctx context.Context, refs []string) (map[string]bool, error)
	FindPaymentByIdempotencyKey(ctx context.Context, key string) (*models.StaffPayment, error)

	InsertSales(ctx context.Context, sales []models.Sale) error
	MarkCommissionPaid(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error)
	// AdoptRenewalRef stamps ref on a ledger row that has none yet.
	AdoptRenewalRef(ctx context.Context, saleID uuid.UUID, ref string) error
	// UpdateInvoice applies fields only while the stored version equals version.
	UpdateInvoice(ctx context.Context, id uuid.UUID, version int, fields map[string]interface{}) (int64, error)
	InsertPayment(ctx context.Context, p *models.StaffPayment) error

	// WithinTx runs fn against a repository bound to a single transaction.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*models.StaffInvoice, error) {
	var inv models.StaffInvoice
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) ListStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Where("role <> ?", models.ROLE_CLIENT).Order("name").Find(&users).Error
	return users, err
}

func (r *gormRepository) ListClients(ctx context.Context) ([]*models.Client, error) {
	var clients []*models.Client
	err := r.db.WithContext(ctx).Find(&clients).Error
	return clients, err
}

func (r *gormRepository) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.WithContext(ctx).Order("name").Find(&methods).Error
	return methods, err
}

func (r *gormRepository) ListPaymentLinks(ctx context.Context) ([]models.PaymentLink, error) {
	var links []models.PaymentLink
	err := r.db.WithContext(ctx).Find(&links).Error
	return links, err
}

func (r *gormRepository) ListSalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Where("sale_date >= ? AND sale_date < ?", from, to).
		Order("sale_date, id").
		Find(&sales).Error
	return sales, err
}

func (r *gormRepository) ListLedger(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Where("closer_id = ? AND sale_date >= ? AND sale_date < ?", staffID, from, to).
		Order("sale_date, id").
		Find(&sales).Error
	return sales, err
}

func (r *gormRepository) ExistingRenewalRefs(ctx context.Context, refs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return found, nil
	}
	var rows []string
	err := r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("source_renewal_ref IN ?", refs).
		Pluck("source_renewal_ref", &rows).Error
	if err != nil {
		return nil, err
	}
	for _, ref := range rows {
		found[ref] = true
	}
	return found, nil
}

func (r *gormRepository) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*models.StaffPayment, error) {
	var p models.StaffPayment
	if err := r.db.WithContext(ctx).First(&p, "idempotency_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) InsertSales(ctx context.Context, sales []models.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&sales).Error
}

func (r *gormRepository) MarkCommissionPaid(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id IN ? AND commission_paid = ?", ids, false).
		Updates(map[string]interface{}{
			"commission_paid":    true,
			"settled_invoice_id": invoiceID,
		})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) AdoptRenewalRef(ctx context.Context, saleID uuid.UUID, ref string) error {
	return r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND source_renewal_ref IS NULL", saleID).
		Update("source_renewal_ref", ref).Error
}

func (r *gormRepository) UpdateInvoice(ctx context.Context, id uuid.UUID, version int, fields map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.StaffInvoice{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) InsertPayment(ctx context.Context, p *models.StaffPayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
