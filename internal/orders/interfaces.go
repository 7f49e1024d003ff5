package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/cart"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/pagination"
)

// Repository owns order persistence. Status writes go through the service so
// transition rules are applied in one place.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Order, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	UpdateFields(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// finalizeGuard is the Redis surface backing exactly-once finalization.
type finalizeGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	FinalizeGuardKey(paymentID string) string
}

// cartAccess is the slice of the cart service finalize and intent issuance use.
type cartAccess interface {
	Items(ctx context.Context, sessionID string) ([]cart.Item, error)
	Clear(ctx context.Context, sessionID string) error
}
