package repositories

import (
	"errors"
	"time"

	"electroshop_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	// ErrTransactionConflict - нарушен уникальный индекс: токен уже есть
	// или по заказу и методу уже висит pending-попытка
	ErrTransactionConflict = errors.New("payment transaction conflicts with an existing one")
)

// TerminalUpdate - поля, которые записываются при выходе из pending
type TerminalUpdate struct {
	Status             models.TransactionStatus
	VerificationStatus models.VerificationStatus
	ProviderReceipt    string
	FailureReason      string
	CallbackPayload    datatypes.JSON
	At                 time.Time
}

type TransactionRepository interface {
	Create(db *gorm.DB, tx *models.PaymentTransaction) error
	FindByCorrelationRef(db *gorm.DB, ref string) (*models.PaymentTransaction, error)
	ListByOrder(db *gorm.DB, orderID string) ([]models.PaymentTransaction, error)

	// TransitionFromPending - единственный способ сменить статус транзакции.
	// Условный UPDATE ... WHERE status = 'pending'; false, если транзакция уже терминальная
	// или не существует.
	TransitionFromPending(db *gorm.DB, ref string, upd TerminalUpdate) (bool, error)

	// CancelPending отменяет висящую попытку по заказу и методу (перед новой попыткой)
	CancelPending(db *gorm.DB, orderID string, method models.PaymentMethod, reason string, at time.Time) ([]string, error)

	// FindStalePending - pending старше cutoff, для фоновой сверки
	FindStalePending(db *gorm.DB, cutoff time.Time, exclude []models.PaymentMethod, limit int) ([]models.PaymentTransaction, error)
}

type TransactionRepositoryImpl struct{}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

func (r *TransactionRepositoryImpl) Create(db *gorm.DB, tx *models.PaymentTransaction) error {
	if err := db.Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrTransactionConflict
		}
		return err
	}
	return nil
}

func (r *TransactionRepositoryImpl) FindByCorrelationRef(db *gorm.DB, ref string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := db.Where("correlation_ref = ?", ref).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepositoryImpl) ListByOrder(db *gorm.DB, orderID string) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&txs).Error
	return txs, err
}

func (r *TransactionRepositoryImpl) TransitionFromPending(db *gorm.DB, ref string, upd TerminalUpdate) (bool, error) {
	if !models.IsValidTransactionTransition(models.TransactionStatusPending, upd.Status) {
		return false, errors.New("invalid terminal status: " + string(upd.Status))
	}

	fields := map[string]interface{}{
		"status":              upd.Status,
		"verification_status": upd.VerificationStatus,
	}
	if upd.ProviderReceipt != "" {
		fields["provider_receipt"] = upd.ProviderReceipt
	}
	if upd.FailureReason != "" {
		fields["failure_reason"] = upd.FailureReason
	}
	if len(upd.CallbackPayload) > 0 {
		fields["callback_payload"] = upd.CallbackPayload
	}
	if upd.Status == models.TransactionStatusCompleted {
		fields["completed_at"] = upd.At
	}

	result := db.Model(&models.PaymentTransaction{}).
		Where("correlation_ref = ? AND status = ?", ref, models.TransactionStatusPending).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *TransactionRepositoryImpl) CancelPending(db *gorm.DB, orderID string, method models.PaymentMethod, reason string, at time.Time) ([]string, error) {
	var refs []string
	err := db.Model(&models.PaymentTransaction{}).
		Where("order_id = ? AND payment_method = ? AND status = ?", orderID, method, models.TransactionStatusPending).
		Pluck("correlation_ref", &refs).Error
	if err != nil {
		return nil, err
	}

	// Каждую отменяем тем же условным переходом: параллельный callback мог успеть раньше
	cancelled := refs[:0]
	for _, ref := range refs {
		ok, err := r.TransitionFromPending(db, ref, TerminalUpdate{
			Status:             models.TransactionStatusCancelled,
			VerificationStatus: models.VerificationStatusFailed,
			FailureReason:      reason,
			At:                 at,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			cancelled = append(cancelled, ref)
		}
	}
	return cancelled, nil
}

func (r *TransactionRepositoryImpl) FindStalePending(db *gorm.DB, cutoff time.Time, exclude []models.PaymentMethod, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	q := db.Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff)
	if len(exclude) > 0 {
		q = q.Where("payment_method NOT IN ?", exclude)
	}
	err := q.Order("created_at ASC").Limit(limit).Find(&txs).Error
	return txs, err
}
