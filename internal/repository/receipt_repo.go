package repository

import (
	"context"

	"closeout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	// FindUnlinkedWithCharge returns unlinked receipts whose charge belongs to
	// the given Stripe account, charge preloaded.
	FindUnlinkedWithCharge(ctx context.Context, accountID string) ([]model.Receipt, error)
	// FindUnlinkedByLinkedCharge returns unlinked receipts whose charge is
	// already linked to the session — receipts that simply weren't stamped
	// when their charge was.
	FindUnlinkedByLinkedCharge(ctx context.Context, sessionID uuid.UUID) ([]model.Receipt, error)
	LinkToSession(ctx context.Context, receiptID, sessionID uuid.UUID) error
}

type receiptRepo struct{ db *gorm.DB }

func NewReceiptRepository(db *gorm.DB) ReceiptRepository { return &receiptRepo{db: db} }

func (r *receiptRepo) FindUnlinkedWithCharge(ctx context.Context, accountID string) ([]model.Receipt, error) {
	var receipts []model.Receipt
	err := r.db.WithContext(ctx).
		Preload("Charge").
		Joins("JOIN charges ON charges.id = receipts.charge_id").
		Where("receipts.pos_session_id IS NULL AND charges.stripe_account_id = ?", accountID).
		Find(&receipts).Error
	return receipts, err
}

func (r *receiptRepo) FindUnlinkedByLinkedCharge(ctx context.Context, sessionID uuid.UUID) ([]model.Receipt, error) {
	var receipts []model.Receipt
	err := r.db.WithContext(ctx).
		Joins("JOIN charges ON charges.id = receipts.charge_id").
		Where("receipts.pos_session_id IS NULL AND charges.pos_session_id = ?", sessionID).
		Find(&receipts).Error
	return receipts, err
}

func (r *receiptRepo) LinkToSession(ctx context.Context, receiptID, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Receipt{}).
		Where("id = ? AND pos_session_id IS NULL", receiptID).
		Update("pos_session_id", sessionID).Error
}
