package database

import (
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.RefreshToken{},
		&domain.Todo{},
	); err != nil {
		return err
	}
	return ensureSingleAdminIndex(db)
}

// ensureSingleAdminIndex guards the one-admin invariant at the storage layer.
// Partial unique indexes are a postgres feature; sqlite test databases rely on
// the service-level checks alone.
func ensureSingleAdminIndex(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_single_admin ON users (role) WHERE role = 'admin'`,
	).Error
}
