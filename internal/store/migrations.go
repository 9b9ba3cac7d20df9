package store

import (
	"database/sql"
	"fmt"

	"github.com/bpsong/mailroom/internal/models"
)

// runMigrations applies incremental schema migrations based on
// PRAGMA user_version. A fresh database created from schema.sql already
// has the latest shape, but migrations still run against it (each step
// is written to be a no-op when its target state already holds) so a
// freshly-created and a long-lived database converge on identical
// behavior.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 backfills recipients.department to the literal
// "Unassigned" for any row left NULL or empty by a pre-migration
// version of the service (spec.md 3).
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(
		`UPDATE recipients SET department = ? WHERE department IS NULL OR department = ''`,
		models.UnassignedDepartment,
	)
	if err != nil {
		return fmt.Errorf("migrate to v1 (department backfill): %w", err)
	}
	return nil
}
