package events

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an events repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEventByID(ctx context.Context, id, profileID uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Preload("Tickets").
		Where("id = ? AND profile_id = ?", id, profileID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindTicketTypes(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]models.TicketType, error) {
	var tickets []models.TicketType
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND id IN ?", eventID, ids).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *repository) ReserveTickets(ctx context.Context, ticketTypeID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketType{}).
		Where("id = ? AND quantity_available >= ?", ticketTypeID, qty).
		Updates(map[string]any{
			"quantity_available": gorm.Expr("quantity_available - ?", qty),
			"quantity_sold":      gorm.Expr("quantity_sold + ?", qty),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ReleaseTickets(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.TicketType{}).
		Where("id = ?", ticketTypeID).
		Updates(map[string]any{
			"quantity_available": gorm.Expr("quantity_available + ?", qty),
			"quantity_sold":      gorm.Expr("quantity_sold - ?", qty),
		}).Error
}
