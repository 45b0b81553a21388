package helpers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"electroshop_backend/database"
	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewTestDB открывает отдельную in-memory SQLite базу на тест и мигрирует схему.
// Одно соединение: in-memory база живет, пока оно открыто.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name, uuid.NewString()[:8])

	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err, "не удалось открыть тестовую БД")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db), "миграция тестовой БД")

	t.Cleanup(func() {
		// асинхронные отправки квитанций могут еще читать базу
		time.Sleep(20 * time.Millisecond)
		sqlDB.Close()
	})
	return db
}

// CreateUser создает пользователя с bcrypt-хешем пароля
func CreateUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:        email,
		Name:         "Test " + string(role),
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error, "создание пользователя %s", email)
	return user
}

// CreateOrder создает заказ на одну позицию с заданной суммой
func CreateOrder(t *testing.T, db *gorm.DB, userID string, total string) *models.Order {
	t.Helper()

	amount := decimal.RequireFromString(total)
	order := &models.Order{
		UserID:        userID,
		TotalAmount:   amount,
		Currency:      "KES",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Items: datatypes.NewJSONSlice([]models.OrderItem{
			{SKU: "TV-55", Name: "55\" television", Quantity: 1, UnitPrice: amount},
		}),
	}
	require.NoError(t, db.Create(order).Error, "создание заказа")
	return order
}

// CreateOrderWithID - заказ с фиксированным ID (сценарии с "O1")
func CreateOrderWithID(t *testing.T, db *gorm.DB, id, userID, total string) *models.Order {
	t.Helper()

	amount := decimal.RequireFromString(total)
	order := &models.Order{
		BaseModel:     models.BaseModel{ID: id},
		UserID:        userID,
		TotalAmount:   amount,
		Currency:      "KES",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, db.Create(order).Error, "создание заказа %s", id)
	return order
}

// Backdate сдвигает created_at транзакции в прошлое (для тестов сверки)
func Backdate(t *testing.T, db *gorm.DB, correlationRef string, age time.Duration) {
	t.Helper()
	err := db.Model(&models.PaymentTransaction{}).
		Where("correlation_ref = ?", correlationRef).
		UpdateColumn("created_at", time.Now().UTC().Add(-age)).Error
	require.NoError(t, err)
}

// LoadTransaction читает транзакцию по токену корреляции
func LoadTransaction(t *testing.T, db *gorm.DB, ref string) *models.PaymentTransaction {
	t.Helper()
	var tx models.PaymentTransaction
	require.NoError(t, db.Where("correlation_ref = ?", ref).First(&tx).Error)
	return &tx
}

// LoadOrder читает заказ
func LoadOrder(t *testing.T, db *gorm.DB, id string) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return &order
}

// MpesaCallbackBody собирает тело STK callback'а Daraja
func MpesaCallbackBody(checkoutRequestID string, resultCode int, amount string, receipt string) map[string]interface{} {
	stk := map[string]interface{}{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": checkoutRequestID,
		"ResultCode":        resultCode,
		"ResultDesc":        "The service request is processed successfully.",
	}
	if resultCode == 1032 {
		stk["ResultDesc"] = "Request cancelled by user"
	} else if resultCode != 0 {
		stk["ResultDesc"] = "The balance is insufficient for the transaction"
	}
	if resultCode == 0 {
		stk["CallbackMetadata"] = map[string]interface{}{
			"Item": []map[string]interface{}{
				{"Name": "Amount", "Value": decimal.RequireFromString(amount).InexactFloat64()},
				{"Name": "MpesaReceiptNumber", "Value": receipt},
				{"Name": "TransactionDate", "Value": 20191219102115},
				{"Name": "PhoneNumber", "Value": 254712345678},
			},
		}
	}
	return map[string]interface{}{
		"Body": map[string]interface{}{"stkCallback": stk},
	}
}
