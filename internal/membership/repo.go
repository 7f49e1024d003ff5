package membership

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
)

// Repository owns membership tier reads and subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListTiers(ctx context.Context, profileID uuid.UUID) ([]models.MembershipTier, error)
	FindTierByID(ctx context.Context, tierID, profileID uuid.UUID) (*models.MembershipTier, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindSubscriptionByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Subscription, error)
	UpdateSubscriptionFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a membership repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListTiers(ctx context.Context, profileID uuid.UUID) ([]models.MembershipTier, error) {
	var tiers []models.MembershipTier
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("monthly_price_cents ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repository) FindTierByID(ctx context.Context, tierID, profileID uuid.UUID) (*models.MembershipTier, error) {
	var tier models.MembershipTier
	err := r.db.WithContext(ctx).
		Where("id = ? AND profile_id = ?", tierID, profileID).
		First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *repository) FindSubscriptionByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Tier").
		Where("provider_payment_id = ?", providerPaymentID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) UpdateSubscriptionFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}
