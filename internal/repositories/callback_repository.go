package repositories

import (
	"time"

	"electroshop_backend/internal/models"

	"gorm.io/gorm"
)

type CallbackRepository interface {
	Create(db *gorm.DB, cb *models.PaymentCallback) error
	MarkMatched(db *gorm.DB, id string, applied bool, at time.Time) error
	// FindUnmatched - callback'и с токеном, для которого не нашлось транзакции
	FindUnmatched(db *gorm.DB, maxAttempts, limit int) ([]models.PaymentCallback, error)
	IncrementReplay(db *gorm.DB, id string) error
}

type CallbackRepositoryImpl struct{}

func NewCallbackRepository() CallbackRepository {
	return &CallbackRepositoryImpl{}
}

func (r *CallbackRepositoryImpl) Create(db *gorm.DB, cb *models.PaymentCallback) error {
	return db.Create(cb).Error
}

func (r *CallbackRepositoryImpl) MarkMatched(db *gorm.DB, id string, applied bool, at time.Time) error {
	return db.Model(&models.PaymentCallback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"matched":      true,
			"applied":      applied,
			"processed_at": at,
		}).Error
}

func (r *CallbackRepositoryImpl) FindUnmatched(db *gorm.DB, maxAttempts, limit int) ([]models.PaymentCallback, error) {
	var cbs []models.PaymentCallback
	err := db.Where("matched = ? AND correlation_ref <> '' AND replay_attempts < ?", false, maxAttempts).
		Where("outcome IN ?", []models.CallbackOutcome{
			models.CallbackOutcomeSuccess,
			models.CallbackOutcomeFailure,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&cbs).Error
	return cbs, err
}

func (r *CallbackRepositoryImpl) IncrementReplay(db *gorm.DB, id string) error {
	return db.Model(&models.PaymentCallback{}).
		Where("id = ?", id).
		UpdateColumn("replay_attempts", gorm.Expr("replay_attempts + 1")).Error
}
