package infra

import (
	"fmt"

	"retailpos/internal/config"
	"retailpos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and, when
// AUTO_MIGRATE is on, brings the schema up to date.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

	if cfg.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// RunMigrations creates / updates every table, then applies the DDL GORM
// cannot express. Also used by the integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Location{},
		&model.Inventory{},
		&model.InventoryMovement{},
		&model.CashRegister{},
		&model.PaymentMethod{},
		&model.CashRegisterSession{},
		&model.CashTransaction{},
		&model.CashCount{},
		&model.CashCountDetail{},
		&model.Sale{},
		&model.SaleDetail{},
		&model.SalePayment{},
		&model.SaleCounter{},
		&model.Receipt{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// handle on its own: partial and expression indexes, check constraints.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// At most one open session per register and per operator.
		{"uq_sessions_open_register", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_open_register
    ON cash_register_sessions (cash_register_id)
    WHERE status = 'abierta'`},
		{"uq_sessions_open_operator", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_open_operator
    ON cash_register_sessions (user_id)
    WHERE status = 'abierta'`},

		// One inventory row per (product, location); NULL location is the default.
		{"uq_inventory_product_location", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_inventory_product_location
    ON inventory (product_id, COALESCE(location_id, '00000000-0000-0000-0000-000000000000'::uuid))`},

		{"ck_inventory_quantity_non_negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'ck_inventory_quantity_non_negative') THEN
    ALTER TABLE inventory ADD CONSTRAINT ck_inventory_quantity_non_negative CHECK (quantity >= 0);
  END IF;
END $$`},
		{"ck_cash_transactions_amount_positive", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'ck_cash_transactions_amount_positive') THEN
    ALTER TABLE cash_transactions ADD CONSTRAINT ck_cash_transactions_amount_positive CHECK (amount > 0);
  END IF;
END $$`},

		// Retry cron query.
		{"idx_receipts_pending_retry", `
CREATE INDEX IF NOT EXISTS idx_receipts_pending_retry
    ON receipts (next_retry_at)
    WHERE status = 'error' AND next_retry_at IS NOT NULL`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
