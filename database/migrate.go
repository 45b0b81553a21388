package database

import (
	"fmt"
	"time"

	"electroshop_backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig - общие настройки GORM для приложения и тестов.
// Время храним в UTC, ошибки драйвера переводим в gorm.ErrDuplicatedKey и т.п.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// Connect открывает пул к Postgres и проверяет соединение
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get *sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Models - все модели, которые мигрируются
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.LoginAttempt{},
		&models.Order{},
		&models.PaymentTransaction{},
		&models.PaymentCallback{},
	}
}

// Migrate выполняет AutoMigrate всех моделей.
// Частичный уникальный индекс idx_payment_tx_one_pending гарантирует
// не более одной pending-попытки на заказ и метод оплаты.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
