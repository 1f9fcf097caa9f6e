package repository

import (
	"context"
	"fmt"
	"time"

	"closeout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionObserver receives the normal-save side effect (closing notifications,
// webhooks). Silent saves never reach it — reconciliation writes must not fan
// out to downstream pipelines.
type SessionObserver interface {
	SessionSaved(ctx context.Context, s *model.PosSession)
}

// ClosedSessionFilter selects closed sessions for batch regeneration.
// From/To are inclusive closed-at bounds.
type ClosedSessionFilter struct {
	StoreID *uuid.UUID
	From    *time.Time
	To      *time.Time
	Limit   int
}

type SessionRepository interface {
	Create(ctx context.Context, s *model.PosSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PosSession, error)
	// FindByIDFull reloads the session with store, device, charges (and their
	// receipts), receipts and events — the fresh-state read regeneration
	// performs after orphan linking.
	FindByIDFull(ctx context.Context, id uuid.UUID) (*model.PosSession, error)
	FindByNumber(ctx context.Context, number string) (*model.PosSession, error)
	FindOpenByDevice(ctx context.Context, deviceID uuid.UUID) (*model.PosSession, error)
	// FindClosed returns closed sessions matching the filter, oldest close
	// first, so window-heuristic matching cannot steal charges from an
	// earlier not-yet-processed session.
	FindClosed(ctx context.Context, f ClosedSessionFilter) ([]model.PosSession, error)
	List(ctx context.Context, storeID *uuid.UUID, status string, page, limit int) ([]model.PosSession, int64, error)
	NextSessionNumber(ctx context.Context) (string, error)
	// Save persists and notifies the observer (webhooks, closing emails).
	Save(ctx context.Context, s *model.PosSession) error
	// SaveSilent persists without triggering any downstream side effects.
	SaveSilent(ctx context.Context, s *model.PosSession) error
}

type sessionRepo struct {
	db       *gorm.DB
	observer SessionObserver
}

func NewSessionRepository(db *gorm.DB, observer SessionObserver) SessionRepository {
	return &sessionRepo{db: db, observer: observer}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.PosSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PosSession, error) {
	var s model.PosSession
	err := r.db.WithContext(ctx).Preload("Store").Preload("Charges").First(&s, "id = ?", id).Error
	return &s, err
}

func (r *sessionRepo) FindByIDFull(ctx context.Context, id uuid.UUID) (*model.PosSession, error) {
	var s model.PosSession
	err := r.db.WithContext(ctx).
		Preload("Store").
		Preload("Device").
		Preload("Charges").
		Preload("Charges.Receipts").
		Preload("Receipts").
		Preload("Events").
		First(&s, "id = ?", id).Error
	return &s, err
}

func (r *sessionRepo) FindByNumber(ctx context.Context, number string) (*model.PosSession, error) {
	var s model.PosSession
	err := r.db.WithContext(ctx).Preload("Store").First(&s, "session_number = ?", number).Error
	return &s, err
}

func (r *sessionRepo) FindOpenByDevice(ctx context.Context, deviceID uuid.UUID) (*model.PosSession, error) {
	var s model.PosSession
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, model.SessionOpen).
		First(&s).Error
	return &s, err
}

func (r *sessionRepo) FindClosed(ctx context.Context, f ClosedSessionFilter) ([]model.PosSession, error) {
	q := r.db.WithContext(ctx).
		Preload("Store").
		Where("status = ?", model.SessionClosed).
		Order("closed_at ASC")
	if f.StoreID != nil {
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.From != nil {
		q = q.Where("closed_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("closed_at <= ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var sessions []model.PosSession
	err := q.Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) List(ctx context.Context, storeID *uuid.UUID, status string, page, limit int) ([]model.PosSession, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.PosSession{})
	if storeID != nil {
		q = q.Where("store_id = ?", *storeID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	var sessions []model.PosSession
	err := q.Order("opened_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}

func (r *sessionRepo) NextSessionNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.db.WithContext(ctx).Raw("SELECT nextval('pos_session_number_seq')").Scan(&n).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("Z-%04d", n), nil
}

func (r *sessionRepo) Save(ctx context.Context, s *model.PosSession) error {
	// Associations are owned by their own repositories; only the session row
	// is written here.
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(s).Error; err != nil {
		return err
	}
	if r.observer != nil {
		r.observer.SessionSaved(ctx, s)
	}
	return nil
}

func (r *sessionRepo) SaveSilent(ctx context.Context, s *model.PosSession) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Omit(clause.Associations).
		Save(s).Error
}
