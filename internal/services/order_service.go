package services

import (
	"context"
	"errors"
	"strings"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/repositories"
	"electroshop_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderService interface {
	Create(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateOrderRequest) (*dto.OrderResponse, error)
	Get(ctx context.Context, db *gorm.DB, orderID, userID string, role models.UserRole) (*dto.OrderResponse, error)
	ListMine(ctx context.Context, db *gorm.DB, userID string, page, pageSize int) (*dto.OrderListResponse, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, orderID string, req *dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error)
}

// pendingCanceller отменяет висящие попытки оплаты (реализует PaymentService)
type pendingCanceller interface {
	CancelPendingForOrder(ctx context.Context, db *gorm.DB, orderID string) (*CancelledAttempts, error)
	AfterOrderCancelled(ctx context.Context, cancelled *CancelledAttempts)
}

type OrderServiceImpl struct {
	orderRepo       repositories.OrderRepository
	payments        pendingCanceller
	defaultCurrency string
}

func NewOrderService(orderRepo repositories.OrderRepository, payments pendingCanceller, defaultCurrency string) OrderService {
	return &OrderServiceImpl{
		orderRepo:       orderRepo,
		payments:        payments,
		defaultCurrency: defaultCurrency,
	}
}

// Create - оформление заказа. Сумма считается на сервере по позициям.
func (s *OrderServiceImpl) Create(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	items := make([]models.OrderItem, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		item := models.OrderItem{
			SKU:       strings.TrimSpace(it.SKU),
			Name:      strings.TrimSpace(it.Name),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Round(2),
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	order := &models.Order{
		UserID:        userID,
		TotalAmount:   total,
		Currency:      currency,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Items:         datatypes.NewJSONSlice(items),
		ShippingPhone: req.ShippingPhone,
	}

	if err := s.orderRepo.Create(db.WithContext(ctx), order); err != nil {
		logger.CtxWithError(ctx, "Failed to create order", err)
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "Order created", "order_id", order.ID, "total", total.String(), "items", len(items))
	resp := dto.NewOrderResponse(order)
	return &resp, nil
}

// Get - покупатель видит только свои заказы, администратор любые.
// Чужой заказ отдается как 404, чтобы не раскрывать существование.
func (s *OrderServiceImpl) Get(ctx context.Context, db *gorm.DB, orderID, userID string, role models.UserRole) (*dto.OrderResponse, error) {
	order, err := s.orderRepo.FindByID(db.WithContext(ctx), orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.InternalError(err)
	}
	if order.UserID != userID && !auth.HasPermission(role, auth.PermOrdersReadAll) {
		return nil, apperrors.ErrOrderNotFound
	}

	resp := dto.NewOrderResponse(order)
	return &resp, nil
}

func (s *OrderServiceImpl) ListMine(ctx context.Context, db *gorm.DB, userID string, page, pageSize int) (*dto.OrderListResponse, error) {
	orders, total, err := s.orderRepo.ListByUser(db.WithContext(ctx), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	result := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, dto.NewOrderResponse(&orders[i]))
	}
	return &dto.OrderListResponse{
		Orders:   result,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// UpdateStatus - ручной перевод заказа администратором.
// Отмена заказа отменяет и все его pending-попытки оплаты в той же транзакции,
// уведомления уходят после коммита.
func (s *OrderServiceImpl) UpdateStatus(ctx context.Context, db *gorm.DB, orderID string, req *dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error) {
	db = db.WithContext(ctx)

	var (
		order     *models.Order
		cancelled *CancelledAttempts
	)
	err := withTx(db, func(tx *gorm.DB) error {
		current, err := s.orderRepo.FindByID(tx, orderID)
		if err != nil {
			return err
		}
		if !models.IsValidOrderTransition(current.Status, req.Status) {
			return apperrors.ErrInvalidOrderTransition.WithDetails(map[string]string{
				"from": string(current.Status),
				"to":   string(req.Status),
			})
		}

		ok, err := s.orderRepo.UpdateStatus(tx, orderID, current.Status, req.Status)
		if err != nil {
			return err
		}
		if !ok {
			// статус поменялся параллельно
			return apperrors.ErrInvalidOrderTransition
		}

		if req.Status == models.OrderStatusCancelled && s.payments != nil {
			cancelled, err = s.payments.CancelPendingForOrder(ctx, tx, orderID)
			if err != nil {
				return err
			}
		}

		order, err = s.orderRepo.FindByID(tx, orderID)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		if _, ok := apperrors.AsAppError(err); ok {
			return nil, err
		}
		logger.CtxWithError(ctx, "Failed to update order status", err, "order_id", orderID)
		return nil, apperrors.InternalError(err)
	}

	if n := cancelled.Count(); n > 0 {
		logger.CtxInfo(ctx, "Pending payments cancelled with order", "order_id", orderID, "count", n)
		s.payments.AfterOrderCancelled(ctx, cancelled)
	}

	logger.CtxInfo(ctx, "Order status updated", "order_id", orderID, "status", order.Status)
	resp := dto.NewOrderResponse(order)
	return &resp, nil
}
