package services

import (
	"gorm.io/gorm"
)

// withTx выполняет fn в транзакции. Если db уже транзакция (тесты, вложенный вызов),
// fn работает в ней же, а commit остается за владельцем.
func withTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if _, inTx := db.Statement.ConnPool.(gorm.TxCommitter); inTx {
		return fn(db)
	}

	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit().Error
}
