package email

import (
	"time"

	"github.com/shopspring/decimal"
)

// Email представляет структуру email сообщения
type Email struct {
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// TemplateData представляет данные для шаблонов писем
type TemplateData map[string]interface{}

// Receipt - данные квитанции об оплате заказа
type Receipt struct {
	To              string
	CustomerName    string
	OrderID         string
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	PaymentMethod   string
	ProviderReceipt string
	PaidAt          time.Time
}
