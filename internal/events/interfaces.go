package events

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
)

// Repository reads the event catalog and owns ticket inventory writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEventByID(ctx context.Context, id, profileID uuid.UUID) (*models.Event, error)
	FindTicketTypes(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]models.TicketType, error)
	// ReserveTickets decrements availability only when enough tickets remain.
	// Returns false when the decrement-with-check matched no row.
	ReserveTickets(ctx context.Context, ticketTypeID uuid.UUID, qty int) (bool, error)
	// ReleaseTickets returns previously reserved tickets to the pool.
	ReleaseTickets(ctx context.Context, ticketTypeID uuid.UUID, qty int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
