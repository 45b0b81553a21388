package repositories

import (
	"errors"

	"electroshop_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

type OrderRepository interface {
	Create(db *gorm.DB, order *models.Order) error
	FindByID(db *gorm.DB, id string) (*models.Order, error)
	ListByUser(db *gorm.DB, userID string, limit, offset int) ([]models.Order, int64, error)

	// MarkPaid переводит payment_status в paid, а статус pending -> processing.
	// Условный UPDATE: повторный вызов ничего не меняет и возвращает false.
	MarkPaid(db *gorm.DB, orderID string) (bool, error)

	// UpdateStatus - условный переход from -> to (админский override)
	UpdateStatus(db *gorm.DB, orderID string, from, to models.OrderStatus) (bool, error)
}

type OrderRepositoryImpl struct{}

func NewOrderRepository() OrderRepository {
	return &OrderRepositoryImpl{}
}

func (r *OrderRepositoryImpl) Create(db *gorm.DB, order *models.Order) error {
	return db.Create(order).Error
}

func (r *OrderRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepositoryImpl) ListByUser(db *gorm.DB, userID string, limit, offset int) ([]models.Order, int64, error) {
	var (
		orders []models.Order
		total  int64
	)

	if err := db.Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	return orders, total, err
}

func (r *OrderRepositoryImpl) MarkPaid(db *gorm.DB, orderID string) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				models.OrderStatusPending, models.OrderStatusProcessing),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *OrderRepositoryImpl) UpdateStatus(db *gorm.DB, orderID string, from, to models.OrderStatus) (bool, error) {
	result := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
