package repository

import (
	"context"

	"closeout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StoreRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Store, error)
	FindDeviceByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
}

type storeRepo struct{ db *gorm.DB }

func NewStoreRepository(db *gorm.DB) StoreRepository { return &storeRepo{db: db} }

func (r *storeRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	var s model.Store
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *storeRepo) FindDeviceByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	var d model.Device
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	return &d, err
}
