package repositories

import (
	"errors"
	"strings"
	"time"

	"electroshop_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	FindByID(db *gorm.DB, id string) (*models.User, error)
	FindByEmail(db *gorm.DB, email string) (*models.User, error)

	// Неудачные попытки входа
	RecordFailedLogin(db *gorm.DB, email, ip string, at time.Time) error
	CountFailedLogins(db *gorm.DB, email string, since time.Time) (int64, error)
	OldestFailedLogin(db *gorm.DB, email string, since time.Time) (*time.Time, error)
	ClearFailedLogins(db *gorm.DB, email string) error
}

type UserRepositoryImpl struct{}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepositoryImpl) Create(db *gorm.DB, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

func (r *UserRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) RecordFailedLogin(db *gorm.DB, email, ip string, at time.Time) error {
	return db.Create(&models.LoginAttempt{
		Email:     normalizeEmail(email),
		IP:        ip,
		CreatedAt: at,
	}).Error
}

func (r *UserRepositoryImpl) CountFailedLogins(db *gorm.DB, email string, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&models.LoginAttempt{}).
		Where("email = ? AND created_at >= ?", normalizeEmail(email), since).
		Count(&count).Error
	return count, err
}

func (r *UserRepositoryImpl) OldestFailedLogin(db *gorm.DB, email string, since time.Time) (*time.Time, error) {
	var attempt models.LoginAttempt
	err := db.Where("email = ? AND created_at >= ?", normalizeEmail(email), since).
		Order("created_at ASC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt.CreatedAt, nil
}

func (r *UserRepositoryImpl) ClearFailedLogins(db *gorm.DB, email string) error {
	return db.Where("email = ?", normalizeEmail(email)).Delete(&models.LoginAttempt{}).Error
}
