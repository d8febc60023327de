package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRotated is returned when a concurrent rotation consumed the
	// token first: the conditional revoke matched zero rows.
	ErrTokenRotated = errors.New("refresh token already rotated")
)

type RefreshTokenRepository interface {
	Create(token *domain.RefreshToken) error
	FindByHash(hash string) (*domain.RefreshToken, error)
	// Rotate revokes the record identified by oldHash and inserts next in a
	// single transaction. Exactly one of two racing callers succeeds; the
	// loser gets ErrTokenRotated.
	Rotate(oldHash string, next *domain.RefreshToken) error
	RevokeByHash(hash string) error
	RevokeAllByUserID(userID uint) (int64, error)
	DeleteExpired(before time.Time) (int64, error)
}

type gormRefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &gormRefreshTokenRepository{db: db}
}

func (r *gormRefreshTokenRepository) Create(token *domain.RefreshToken) error {
	return r.db.Create(token).Error
}

func (r *gormRefreshTokenRepository) FindByHash(hash string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.db.Where("token_hash = ?", hash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *gormRefreshTokenRepository) Rotate(oldHash string, next *domain.RefreshToken) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&domain.RefreshToken{}).
			Where("token_hash = ? AND revoked_at IS NULL", oldHash).
			Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another handler won the race on the same token; rolling back
			// keeps the replacement out of the table.
			return ErrTokenRotated
		}
		return tx.Create(next).Error
	})
}

func (r *gormRefreshTokenRepository) RevokeByHash(hash string) error {
	now := time.Now().UTC()
	res := r.db.Model(&domain.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", now)
	// Zero rows means missing or already revoked; revocation is idempotent
	// so neither is an error.
	return res.Error
}

func (r *gormRefreshTokenRepository) RevokeAllByUserID(userID uint) (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

func (r *gormRefreshTokenRepository) DeleteExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", before).Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}
