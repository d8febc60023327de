package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

// SeedReport describes what a seed run changed.
type SeedReport struct {
	Noop         bool
	CreatedAdmin bool
	AdminEmail   string
}

// SeedSync bootstraps the administrator account from configuration. It is
// idempotent: an existing admin, matching or not, makes the run a no-op.
func SeedSync(db *gorm.DB, cfg *config.Config) (SeedReport, error) {
	report := SeedReport{Noop: true}
	if cfg.BootstrapAdminEmail == "" {
		return report, nil
	}
	if cfg.BootstrapAdminPasswordHash == "" {
		return report, errors.New("bootstrap admin password hash is required")
	}

	var count int64
	if err := db.Model(&domain.User{}).Where("role = ?", domain.RoleAdmin).Count(&count).Error; err != nil {
		return report, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return report, nil
	}

	admin := domain.User{
		Email:        strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminEmail)),
		PasswordHash: cfg.BootstrapAdminPasswordHash,
		Role:         domain.RoleAdmin,
		Name:         cfg.BootstrapAdminName,
	}
	if err := db.Create(&admin).Error; err != nil {
		return report, fmt.Errorf("create admin: %w", err)
	}
	return SeedReport{CreatedAdmin: true, AdminEmail: admin.Email}, nil
}

// ResetPassword replaces a user's credential hash by email, for operator
// tooling. Lookup is case-insensitive on the normalized address.
func ResetPassword(db *gorm.DB, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("email is required")
	}
	if passwordHash == "" {
		return errors.New("password hash is required")
	}

	var user domain.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return err
	}
	return db.Model(&user).Update("password_hash", passwordHash).Error
}
