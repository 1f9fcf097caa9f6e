package repository

import (
	"context"

	"closeout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChargeRepository interface {
	// FindOrphanCandidates returns succeeded, unlinked charges for one Stripe
	// account, receipts preloaded for session-number evidence checks.
	FindOrphanCandidates(ctx context.Context, accountID string) ([]model.Charge, error)
	// LinkToSession stamps the session onto a charge only while it is still
	// unlinked. Already-linked charges are never moved.
	LinkToSession(ctx context.Context, chargeID, sessionID uuid.UUID) error
}

type chargeRepo struct{ db *gorm.DB }

func NewChargeRepository(db *gorm.DB) ChargeRepository { return &chargeRepo{db: db} }

func (r *chargeRepo) FindOrphanCandidates(ctx context.Context, accountID string) ([]model.Charge, error) {
	var charges []model.Charge
	err := r.db.WithContext(ctx).
		Preload("Receipts").
		Where("stripe_account_id = ? AND status = ? AND pos_session_id IS NULL",
			accountID, model.ChargeSucceeded).
		Order("created_at ASC").
		Find(&charges).Error
	return charges, err
}

func (r *chargeRepo) LinkToSession(ctx context.Context, chargeID, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Charge{}).
		Where("id = ? AND pos_session_id IS NULL", chargeID).
		Update("pos_session_id", sessionID).Error
}
