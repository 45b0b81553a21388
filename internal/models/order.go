package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Order - покупка. Не удаляется, только меняет статусы.
type Order struct {
	BaseModel
	UserID        string                         `gorm:"type:uuid;not null;index" json:"user_id"`
	TotalAmount   decimal.Decimal                `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Currency      string                         `gorm:"type:varchar(3);not null" json:"currency"`
	Status        OrderStatus                    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus                  `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	Items         datatypes.JSONSlice[OrderItem] `json:"items"`
	ShippingPhone string                         `gorm:"type:varchar(20)" json:"shipping_phone,omitempty"`

	Transactions []PaymentTransaction `gorm:"foreignKey:OrderID" json:"-"`
}

// OrderItem - снимок позиции на момент покупки
type OrderItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal - сумма по позиции
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// IsPayable - можно ли принимать оплату по заказу
func (o *Order) IsPayable() bool {
	return o.PaymentStatus != PaymentStatusPaid && o.Status != OrderStatusCancelled
}
