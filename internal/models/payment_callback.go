package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CallbackOutcome string

const (
	CallbackOutcomeSuccess   CallbackOutcome = "success"
	CallbackOutcomeFailure   CallbackOutcome = "failure"
	CallbackOutcomeIgnored   CallbackOutcome = "ignored"   // событие провайдера, не меняющее статус
	CallbackOutcomeMalformed CallbackOutcome = "malformed" // не удалось разобрать тело
)

// PaymentCallback - журнал входящих callback'ов провайдеров.
// Callback с неизвестным токеном остается Matched=false и переигрывается воркером.
type PaymentCallback struct {
	BaseModel
	Provider       PaymentMethod   `gorm:"type:varchar(20);not null;index" json:"provider"`
	CorrelationRef string          `gorm:"type:varchar(255);index" json:"correlation_ref"`
	Outcome        CallbackOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	Payload        datatypes.JSON  `json:"payload"`

	// Нормализованные поля события, нужны для повторного применения
	Receipt string              `gorm:"type:varchar(255)" json:"receipt,omitempty"`
	Amount  decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"amount,omitempty"`
	Reason  string              `gorm:"type:varchar(255)" json:"reason,omitempty"`

	Matched        bool       `gorm:"not null;default:false;index" json:"matched"`
	Applied        bool       `gorm:"not null;default:false" json:"applied"` // callback перевел транзакцию
	Error          string     `gorm:"type:text" json:"error,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	ReplayAttempts int        `gorm:"not null;default:0" json:"replay_attempts"`
}
