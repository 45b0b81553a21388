package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"electroshop_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashPrefix - токены оплаты при доставке выдаются локально
const CashPrefix = "COD-"

// CashAdapter - оплата при доставке. Провайдера нет: транзакция закрывается
// подтверждением администратора о получении денег.
type CashAdapter struct{}

func NewCashAdapter() *CashAdapter {
	return &CashAdapter{}
}

func (a *CashAdapter) Method() models.PaymentMethod {
	return models.PaymentMethodCash
}

func (a *CashAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	meta, _ := json.Marshal(map[string]string{
		"order_id": req.OrderID,
		"contact":  req.PayerContact,
	})
	return &InitiateResult{
		CorrelationRef: CashPrefix + uuid.NewString(),
		Message:        "Pay the courier on delivery",
		Metadata:       meta,
	}, nil
}

// ParseCallback - внешних callback'ов для наличных нет
func (a *CashAdapter) ParseCallback(raw []byte, _ http.Header) (Callback, error) {
	return nil, ErrNotSupported
}

// QueryStatus - статус знает только магазин
func (a *CashAdapter) QueryStatus(ctx context.Context, ref string) (*Event, error) {
	return &Event{Provider: a.Method(), CorrelationRef: ref, Outcome: OutcomePending}, nil
}

func (a *CashAdapter) Cancel(ctx context.Context, ref string) error {
	return nil
}

// CashConfirmation - подтверждение администратора, что курьер получил деньги
type CashConfirmation struct {
	CorrelationRef string          `json:"correlation_ref"`
	ConfirmedBy    string          `json:"confirmed_by"`
	Amount         decimal.Decimal `json:"amount"`
	ConfirmedAt    time.Time       `json:"confirmed_at"`
}

func (*CashConfirmation) callback() {}

func (c *CashConfirmation) Event() Event {
	raw, _ := json.Marshal(c)
	amount := c.Amount
	return Event{
		Provider:       models.PaymentMethodCash,
		CorrelationRef: c.CorrelationRef,
		Outcome:        OutcomeSuccess,
		Receipt:        fmt.Sprintf("cash:%s", c.ConfirmedBy),
		Amount:         &amount,
		Raw:            raw,
	}
}
