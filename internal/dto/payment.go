package dto

import (
	"time"

	"electroshop_backend/internal/models"

	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest - запрос на создание попытки оплаты
type InitiatePaymentRequest struct {
	OrderID       string               `json:"orderId" validate:"required"`
	Amount        decimal.Decimal      `json:"amount" validate:"gt=0"`
	PayerContact  string               `json:"payerContact" validate:"required,is-payer-contact"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod,omitempty" validate:"omitempty,is-payment-method"`
}

// InitiatePaymentResponse - ответ инициатора.
// TransactionID - токен корреляции, по нему клиент опрашивает статус.
type InitiatePaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message"`
	IsDemo        bool   `json:"isDemo,omitempty"`
	// ClientSecret - для подтверждения PaymentIntent на стороне клиента (card)
	ClientSecret string `json:"clientSecret,omitempty"`
}

// TransactionRefRequest - тело запросов статуса и отмены
type TransactionRefRequest struct {
	TransactionID string `json:"transactionId" validate:"required,max=255"`
}

// PaymentStatusResponse - ответ опроса статуса
type PaymentStatusResponse struct {
	Success            bool                      `json:"success"`
	Status             models.TransactionStatus  `json:"status,omitempty"`
	Verified           *bool                     `json:"verified,omitempty"`
	VerificationStatus models.VerificationStatus `json:"verificationStatus,omitempty"`
	OrderID            string                    `json:"orderId,omitempty"`
	Message            string                    `json:"message,omitempty"`
}

// CallbackAck - конверт, который ожидает провайдер. Всегда ResultCode 0.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// SuccessAck - единственный ответ на callback
func SuccessAck() CallbackAck {
	return CallbackAck{ResultCode: 0, ResultDesc: "Success"}
}

// PaymentFailureResponse - тело ошибки для эндпоинтов платежей
type PaymentFailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// TransactionDTO - попытка оплаты для админки
type TransactionDTO struct {
	ID                 string                    `json:"id"`
	TransactionID      string                    `json:"transactionId"`
	OrderID            string                    `json:"orderId"`
	Amount             decimal.Decimal           `json:"amount"`
	Currency           string                    `json:"currency"`
	PaymentMethod      models.PaymentMethod      `json:"paymentMethod"`
	PayerContact       string                    `json:"payerContact"`
	Status             models.TransactionStatus  `json:"status"`
	VerificationStatus models.VerificationStatus `json:"verificationStatus"`
	IsDemo             bool                      `json:"isDemo"`
	ProviderReceipt    string                    `json:"providerReceipt,omitempty"`
	FailureReason      string                    `json:"failureReason,omitempty"`
	CreatedAt          time.Time                 `json:"createdAt"`
	CompletedAt        *time.Time                `json:"completedAt,omitempty"`
}

// PaymentStatusUpdate - сообщение подписчикам WebSocket о смене статуса
type PaymentStatusUpdate struct {
	TransactionID      string                    `json:"transactionId"`
	OrderID            string                    `json:"orderId"`
	Status             models.TransactionStatus  `json:"status"`
	VerificationStatus models.VerificationStatus `json:"verificationStatus"`
	Verified           bool                      `json:"verified"`
	Reason             string                    `json:"reason,omitempty"`
	At                 time.Time                 `json:"at"`
}

// NewTransactionDTO собирает ответ из модели
func NewTransactionDTO(t *models.PaymentTransaction) TransactionDTO {
	return TransactionDTO{
		ID:                 t.ID,
		TransactionID:      t.CorrelationRef,
		OrderID:            t.OrderID,
		Amount:             t.Amount,
		Currency:           t.Currency,
		PaymentMethod:      t.PaymentMethod,
		PayerContact:       t.PayerContact,
		Status:             t.Status,
		VerificationStatus: t.VerificationStatus,
		IsDemo:             t.IsDemo,
		ProviderReceipt:    t.ProviderReceipt,
		FailureReason:      t.FailureReason,
		CreatedAt:          t.CreatedAt,
		CompletedAt:        t.CompletedAt,
	}
}
