package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

// Service exposes cart operations keyed by visitor session.
type Service interface {
	// Add appends a new line or replaces the line sharing the identity key.
	// It returns true when the item was appended, false when it replaced an
	// existing line. Quantities are never merged.
	Add(ctx context.Context, sessionID string, item Item) (bool, error)
	Remove(ctx context.Context, sessionID string, productID uuid.UUID, isGift bool, recipientEmail *string) error
	Items(ctx context.Context, sessionID string) ([]Item, error)
	SubtotalCents(ctx context.Context, sessionID string) (int64, error)
	Clear(ctx context.Context, sessionID string) error
}

type service struct {
	store *Store
	logg  *logger.Logger
}

// NewService builds a cart service backed by the redis store.
func NewService(store *Store, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	return &service{store: store, logg: logg}, nil
}

func (s *service) Add(ctx context.Context, sessionID string, item Item) (bool, error) {
	if err := validateSessionID(sessionID); err != nil {
		return false, err
	}
	if err := validateItem(item); err != nil {
		return false, err
	}

	items, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	key := item.identityKey()
	appended := true
	for i := range items {
		if items[i].identityKey() == key {
			items[i] = item
			appended = false
			break
		}
	}
	if appended {
		items = append(items, item)
	}

	if err := s.store.Save(ctx, sessionID, items); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": item.ProductID.String(),
			"appended":   appended,
			"cart_size":  len(items),
		})
		s.logg.Info(logCtx, "cart item stored")
	}
	return appended, nil
}

func (s *service) Remove(ctx context.Context, sessionID string, productID uuid.UUID, isGift bool, recipientEmail *string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	items, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	remaining := items[:0]
	for _, item := range items {
		if item.Matches(productID, isGift, recipientEmail) {
			continue
		}
		remaining = append(remaining, item)
	}

	if err := s.store.Save(ctx, sessionID, remaining); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func (s *service) Items(ctx context.Context, sessionID string) ([]Item, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	items, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return items, nil
}

func (s *service) SubtotalCents(ctx context.Context, sessionID string) (int64, error) {
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return Subtotal(items), nil
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}

func validateItem(item Item) error {
	if item.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(item.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if item.PriceCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	if item.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if item.IsGift {
		if item.RecipientEmail == nil || strings.TrimSpace(*item.RecipientEmail) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift items require a recipient email")
		}
	}
	return nil
}
