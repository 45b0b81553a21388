package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"electroshop_backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrAuthFailed - провайдер не выдал токен доступа
	ErrAuthFailed = errors.New("provider authentication failed")
	// ErrUnavailable - сеть, таймаут, 5xx
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRejected - провайдер ответил и отказал в платеже
	ErrRejected = errors.New("provider rejected the payment")
	// ErrNotConfigured - нет ключей, а демо-режим выключен
	ErrNotConfigured = errors.New("provider credentials are not configured")

	ErrMalformedCallback = errors.New("malformed provider callback")
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrNotSupported      = errors.New("operation not supported by provider")
	ErrUnknownMethod     = errors.New("payment method is not registered")
)

// Outcome - нормализованный результат от провайдера
type Outcome = models.CallbackOutcome

const (
	OutcomeSuccess = models.CallbackOutcomeSuccess
	OutcomeFailure = models.CallbackOutcomeFailure
	OutcomeIgnored = models.CallbackOutcomeIgnored
	// OutcomePending - провайдер еще не знает результата (только опрос)
	OutcomePending Outcome = "pending"
)

// Event - единая форма события оплаты после разбора ответа конкретного провайдера
type Event struct {
	Provider       models.PaymentMethod
	CorrelationRef string
	Outcome        Outcome
	Receipt        string
	// Amount - фактически оплаченная сумма, если провайдер ее сообщает
	Amount *decimal.Decimal
	Reason string
	Raw    json.RawMessage
}

// IsTerminal - событие переводит транзакцию из pending
func (e Event) IsTerminal() bool {
	return e.Outcome == OutcomeSuccess || e.Outcome == OutcomeFailure
}

// Callback - разобранное тело callback'а. Реализации: *MpesaCallback, *CardCallback, *CashConfirmation.
type Callback interface {
	Event() Event
	callback()
}

type InitiateRequest struct {
	OrderID      string
	Amount       decimal.Decimal
	Currency     string
	PayerContact string
	Description  string
}

type InitiateResult struct {
	CorrelationRef string
	IsDemo         bool
	Message        string
	ClientSecret   string
	// Metadata - ответ провайдера как есть, для аудита
	Metadata json.RawMessage
}

// CallbackConfirmer - провайдер, чьи callback'и не подписаны.
// Терминальный callback по такому токену применяется только после того, как QueryStatus
// вернул терминальный результат.
type CallbackConfirmer interface {
	ConfirmsCallbacks(ref string) bool
}

// Adapter - интеграция с одним платежным провайдером
type Adapter interface {
	Method() models.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	ParseCallback(raw []byte, headers http.Header) (Callback, error)
	QueryStatus(ctx context.Context, ref string) (*Event, error)
	Cancel(ctx context.Context, ref string) error
}
