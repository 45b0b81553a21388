package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentTransaction - одна попытка оплаты заказа.
// В терминальный статус переводится ровно один раз условным UPDATE ... WHERE status = 'pending'.
type PaymentTransaction struct {
	BaseModel
	OrderID string `gorm:"type:uuid;not null;uniqueIndex:idx_payment_tx_one_pending,where:status = 'pending'" json:"order_id"`
	Order   *Order `gorm:"foreignKey:OrderID" json:"-"`

	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_tx_one_pending" json:"payment_method"`
	PayerContact  string          `gorm:"type:varchar(255);not null" json:"payer_contact"`

	Status             TransactionStatus  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"verification_status"`

	// Токен корреляции, выданный провайдером (или демо/cash токен)
	CorrelationRef string `gorm:"type:varchar(255);not null;uniqueIndex" json:"correlation_ref"`
	// Демо-токен: ключей провайдера не было, денег никто не списывал
	IsDemo bool `gorm:"not null;default:false" json:"is_demo"`

	// Ответ провайдера на инициацию, как есть
	ProviderMetadata datatypes.JSON `json:"provider_metadata,omitempty"`
	// Тело callback'а, который перевел транзакцию в терминальный статус
	CallbackPayload datatypes.JSON `json:"callback_payload,omitempty"`
	// Номер квитанции провайдера (MpesaReceiptNumber, charge id)
	ProviderReceipt string `gorm:"type:varchar(255)" json:"provider_receipt,omitempty"`
	FailureReason   string `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsVerified - единственное доказательство оплаты заказа
func (t *PaymentTransaction) IsVerified() bool {
	return t.Status == TransactionStatusCompleted && t.VerificationStatus == VerificationStatusVerified
}
