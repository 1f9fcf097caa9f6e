package infra

import (
	"fmt"

	"closeout/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate
// to create/update all tables, then applies the idempotent SQL patches that
// GORM cannot express (sequences, partial indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the schema; also used by integration test setups.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Store{},
		&model.Device{},
		&model.PosSession{},
		&model.Charge{},
		&model.Receipt{},
		&model.Event{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot handle:
// the session number sequence and the partial indexes backing the orphan
// scan queries. Re-running on an already-patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		`CREATE SEQUENCE IF NOT EXISTS pos_session_number_seq START 1`,
		// Orphan candidate scan: succeeded, unlinked charges per account.
		`CREATE INDEX IF NOT EXISTS idx_charges_orphan
		     ON charges (stripe_account_id, created_at)
		     WHERE pos_session_id IS NULL AND status = 'succeeded'`,
		// Unlinked receipts/events that still reference a charge.
		`CREATE INDEX IF NOT EXISTS idx_receipts_orphan
		     ON receipts (charge_id)
		     WHERE pos_session_id IS NULL AND charge_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_events_orphan
		     ON events (charge_id)
		     WHERE pos_session_id IS NULL AND charge_id IS NOT NULL`,
		// Batch regeneration scans closed sessions in closed_at order.
		`CREATE INDEX IF NOT EXISTS idx_pos_sessions_closed
		     ON pos_sessions (closed_at)
		     WHERE status = 'closed'`,
	}
	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
