package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
)

// UserRepository defines the interface for staff lookups
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

// ClientRepository defines the interface for the clientes roster
type ClientRepository interface {
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	List(ctx context.Context) ([]*models.Client, error)
	UpdateClientColumns(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

// PaymentMethodRepository defines the interface for admin-configured gateways
type PaymentMethodRepository interface {
	List(ctx context.Context) ([]models.PaymentMethod, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
	Create(ctx context.Context, m *models.PaymentMethod) error
	Update(ctx context.Context, m *models.PaymentMethod) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PaymentLinkRepository defines the interface for the payment links library
type PaymentLinkRepository interface {
	List(ctx context.Context) ([]models.PaymentLink, error)
}

// SaleRepository defines the interface for reads of the sales ledger
type SaleRepository interface {
	// ListBetween returns every sale dated in [from, to).
	ListBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error)
}

// PaymentRepository defines the interface for the staff payment history
type PaymentRepository interface {
	List(ctx context.Context, f PaymentFilter) ([]models.StaffPayment, error)
}

// PaymentFilter narrows the payment history. Zero values mean no filter.
type PaymentFilter struct {
	Year    int
	Month   int
	StaffID *uuid.UUID
}

// Repositories struct holds all repository instances
type Repositories struct {
	User          UserRepository
	Client        ClientRepository
	PaymentMethod PaymentMethodRepository
	PaymentLink   PaymentLinkRepository
	Sale          SaleRepository
	Payment       PaymentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Client:        NewClientRepository(db),
		PaymentMethod: NewPaymentMethodRepository(db, redisJSONCache{}),
		PaymentLink:   NewPaymentLinkRepository(db),
		Sale:          NewSaleRepository(db),
		Payment:       NewPaymentRepository(db),
	}
}
