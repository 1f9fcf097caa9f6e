package repository

import (
	"context"

	"closeout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository interface {
	// FindByChargeIDs returns events referencing any of the charges,
	// regardless of their own link state (used as attribution evidence).
	FindByChargeIDs(ctx context.Context, chargeIDs []uuid.UUID) ([]model.Event, error)
	// FindUnlinkedWithCharge returns unlinked events that reference a charge
	// belonging to the given Stripe account.
	FindUnlinkedWithCharge(ctx context.Context, accountID string) ([]model.Event, error)
	LinkToSession(ctx context.Context, eventID, sessionID uuid.UUID) error
}

type eventRepo struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) EventRepository { return &eventRepo{db: db} }

func (r *eventRepo) FindByChargeIDs(ctx context.Context, chargeIDs []uuid.UUID) ([]model.Event, error) {
	if len(chargeIDs) == 0 {
		return nil, nil
	}
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("charge_id IN ?", chargeIDs).
		Find(&events).Error
	return events, err
}

func (r *eventRepo) FindUnlinkedWithCharge(ctx context.Context, accountID string) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Joins("JOIN charges ON charges.id = events.charge_id").
		Where("events.pos_session_id IS NULL AND charges.stripe_account_id = ?", accountID).
		Find(&events).Error
	return events, err
}

func (r *eventRepo) LinkToSession(ctx context.Context, eventID, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND pos_session_id IS NULL", eventID).
		Update("pos_session_id", sessionID).Error
}
