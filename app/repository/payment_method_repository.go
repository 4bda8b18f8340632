package repository

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/cache"
)

const (
	CacheKeyPaymentMethods = "payment_methods:all"
	paymentMethodsTTL      = 10 * time.Minute
)

// jsonCache is the subset of the cache package used for read-through lists.
type jsonCache interface {
	GetJSON(ctx context.Context, key string, v interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type redisJSONCache struct{}

func (redisJSONCache) GetJSON(ctx context.Context, key string, v interface{}) error {
	return cache.GetJSON(ctx, key, v)
}

func (redisJSONCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	return cache.SetJSON(ctx, key, v, ttl)
}

func (redisJSONCache) Delete(ctx context.Context, key string) error {
	return cache.Delete(ctx, key)
}

type paymentMethodRepository struct {
	db    *gorm.DB
	cache jsonCache
}

// NewPaymentMethodRepository creates the repository. A nil cache disables caching.
func NewPaymentMethodRepository(db *gorm.DB, c jsonCache) PaymentMethodRepository {
	return &paymentMethodRepository{db: db, cache: c}
}

// List serves the cached list when present. Cache failures fall through to the database.
func (r *paymentMethodRepository) List(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if r.cache != nil {
		err := r.cache.GetJSON(ctx, CacheKeyPaymentMethods, &methods)
		if err == nil {
			return methods, nil
		}
		if !cache.IsMiss(err) {
			log.Warnf("[PaymentMethods] cache read failed: %v", err)
		}
	}

	methods = nil
	if err := r.db.WithContext(ctx).Order("name").Find(&methods).Error; err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, CacheKeyPaymentMethods, methods, paymentMethodsTTL); err != nil {
			log.Warnf("[PaymentMethods] cache write failed: %v", err)
		}
	}
	return methods, nil
}

func (r *paymentMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *paymentMethodRepository) Create(ctx context.Context, m *models.PaymentMethod) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *paymentMethodRepository) Update(ctx context.Context, m *models.PaymentMethod) error {
	res := r.db.WithContext(ctx).Model(&models.PaymentMethod{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"name":                    m.Name,
			"platform_fee_percentage": m.PlatformFeePercentage,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.invalidate(ctx)
	return nil
}

func (r *paymentMethodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.PaymentMethod{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.invalidate(ctx)
	return nil
}

func (r *paymentMethodRepository) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, CacheKeyPaymentMethods); err != nil {
		log.Warnf("[PaymentMethods] cache invalidation failed: %v", err)
	}
}
