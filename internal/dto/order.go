package dto

import (
	"time"

	"electroshop_backend/internal/models"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest - оформление заказа
type CreateOrderRequest struct {
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	Currency      string             `json:"currency,omitempty" validate:"omitempty,is-currency"`
	ShippingPhone string             `json:"shippingPhone,omitempty" validate:"omitempty,max=20"`
}

type OrderItemRequest struct {
	SKU       string          `json:"sku" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=255"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=1000"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gt=0"`
}

// UpdateOrderStatusRequest - ручная смена статуса администратором
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,is-order-status"`
}

type OrderResponse struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	TotalAmount   decimal.Decimal      `json:"totalAmount"`
	Currency      string               `json:"currency"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Items         []models.OrderItem   `json:"items"`
	ShippingPhone string               `json:"shippingPhone,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type OrderListResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// NewOrderResponse собирает ответ из модели
func NewOrderResponse(o *models.Order) OrderResponse {
	items := []models.OrderItem(o.Items)
	if items == nil {
		items = []models.OrderItem{}
	}
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Items:         items,
		ShippingPhone: o.ShippingPhone,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
