package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// lockWait bounds how long a unit of work queues behind another one's row
// locks. Past it Postgres raises 55P03, which the repositories classify as
// transient.
const lockWait = "5s"

// runTx runs fn as a single unit of work: every write inside it commits
// together or not at all. With a nil db (unit tests) fn runs with a nil tx.
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SET LOCAL lock_timeout = '" + lockWait + "'").Error; err != nil {
			return fmt.Errorf("lock_timeout: %w", err)
		}
		return fn(tx)
	})
}
