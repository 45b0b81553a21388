package models

import "time"

type User struct {
	BaseModel
	Email        string   `gorm:"uniqueIndex;not null" json:"email"`
	Name         string   `gorm:"type:varchar(255)" json:"name"`
	Phone        string   `gorm:"type:varchar(20)" json:"phone,omitempty"`
	PasswordHash string   `gorm:"not null" json:"-"`
	Role         UserRole `gorm:"type:varchar(20);not null;default:'customer'" json:"role"`
}

// LoginAttempt - неудачная попытка входа, основа для ограничения частоты логинов
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"type:varchar(255);not null;index:idx_login_attempts_email_time"`
	IP        string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"not null;index:idx_login_attempts_email_time"`
}
