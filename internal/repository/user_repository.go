package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(user *domain.User) error
	FindByID(id uint) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	List() ([]domain.User, error)
	Update(user *domain.User) error
	UpdatePasswordHash(userID uint, hash string) error
	Delete(id uint) error
	EmailTakenByOther(email string, excludeID uint) (bool, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(user *domain.User) error {
	user.Email = NormalizeEmail(user.Email)
	return r.db.Create(user).Error
}

func (r *gormUserRepository) FindByID(id uint) (*domain.User, error) {
	var user domain.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := r.db.Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) List() ([]domain.User, error) {
	var users []domain.User
	if err := r.db.Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *gormUserRepository) Update(user *domain.User) error {
	user.Email = NormalizeEmail(user.Email)
	return r.db.Save(user).Error
}

func (r *gormUserRepository) UpdatePasswordHash(userID uint, hash string) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *gormUserRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *gormUserRepository) EmailTakenByOther(email string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&domain.User{}).
		Where("email = ? AND id <> ?", NormalizeEmail(email), excludeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NormalizeEmail is the single place email case-folding happens; every lookup
// and write goes through it so the unique index sees one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
