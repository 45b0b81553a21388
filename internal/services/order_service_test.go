package services_test

import (
	"context"
	"testing"
	"time"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/repositories"
	"electroshop_backend/internal/services"
	"electroshop_backend/pkg/apperrors"
	"electroshop_backend/test/helpers"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderService_CreateComputesTotal(t *testing.T) {
	db := helpers.NewTestDB(t)
	user := helpers.CreateUser(t, db, "buyer@example.com", "password123", models.UserRoleCustomer)
	svc := services.NewOrderService(repositories.NewOrderRepository(), nil, "KES")

	order, err := svc.Create(context.Background(), db, user.ID, &dto.CreateOrderRequest{
		Items: []dto.OrderItemRequest{
			{SKU: "PH-1", Name: "Phone", Quantity: 2, UnitPrice: decimal.RequireFromString("15000.50")},
			{SKU: "CB-1", Name: "USB-C cable", Quantity: 3, UnitPrice: decimal.RequireFromString("499.99")},
		},
	})
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("31500.97")), "got %s", order.TotalAmount)
	assert.Equal(t, "KES", order.Currency)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Len(t, order.Items, 2)
}

func TestOrderService_GetHidesForeignOrders(t *testing.T) {
	db := helpers.NewTestDB(t)
	owner := helpers.CreateUser(t, db, "owner@example.com", "password123", models.UserRoleCustomer)
	other := helpers.CreateUser(t, db, "other@example.com", "password123", models.UserRoleCustomer)
	admin := helpers.CreateUser(t, db, "admin@example.com", "password123", models.UserRoleAdmin)
	order := helpers.CreateOrder(t, db, owner.ID, "100")
	svc := services.NewOrderService(repositories.NewOrderRepository(), nil, "KES")

	got, err := svc.Get(context.Background(), db, order.ID, owner.ID, owner.Role)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Get(context.Background(), db, order.ID, other.ID, other.Role)
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	_, err = svc.Get(context.Background(), db, order.ID, admin.ID, admin.Role)
	assert.NoError(t, err)
}

func TestOrderService_ListMinePaginates(t *testing.T) {
	db := helpers.NewTestDB(t)
	user := helpers.CreateUser(t, db, "buyer@example.com", "password123", models.UserRoleCustomer)
	for i := 0; i < 3; i++ {
		helpers.CreateOrder(t, db, user.ID, "10")
	}
	svc := services.NewOrderService(repositories.NewOrderRepository(), nil, "KES")

	page, err := svc.ListMine(context.Background(), db, user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Orders, 2)

	page, err = svc.ListMine(context.Background(), db, user.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	env := newPaymentEnv(t)
	svc := services.NewOrderService(repositories.NewOrderRepository(), env.svc, "KES")
	order := helpers.CreateOrder(t, env.db, env.customer.ID, "500")

	_, err := svc.UpdateStatus(context.Background(), env.db, order.ID, &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCompleted})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderTransition)

	_, err = svc.UpdateStatus(context.Background(), env.db, "missing", &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	// отмена заказа отменяет висящую попытку оплаты
	resp := env.initiate(t, order.ID, "500")
	got, err := svc.UpdateStatus(context.Background(), env.db, order.ID, &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	ptx := helpers.LoadTransaction(t, env.db, resp.TransactionID)
	assert.Equal(t, models.TransactionStatusCancelled, ptx.Status)
	assert.Equal(t, services.ReasonOrderCancelled, ptx.FailureReason)

	// по отмененному заказу новая попытка невозможна
	_, err = env.svc.Initiate(context.Background(), env.db, &dto.InitiatePaymentRequest{
		OrderID: order.ID, Amount: decimal.NewFromInt(500), PayerContact: "+254712345678",
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotPayable)
}

// Подписчик и провайдер узнают об отмене попытки, когда отмена заказа уже закоммичена
func TestOrderService_CancelNotifiesAfterCommit(t *testing.T) {
	env := newPaymentEnv(t)
	svc := services.NewOrderService(repositories.NewOrderRepository(), env.svc, "KES")
	order := helpers.CreateOrder(t, env.db, env.customer.ID, "500")
	resp := env.initiate(t, order.ID, "500")

	type observed struct {
		tx    models.TransactionStatus
		order models.OrderStatus
		err   error
	}
	var seen []observed
	env.publisher.inspect = func(u dto.PaymentStatusUpdate) {
		// у тестовой БД одно соединение: пока транзакция открыта, чтение ждет до таймаута
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		var ptx models.PaymentTransaction
		var o models.Order
		err := env.db.WithContext(ctx).First(&ptx, "correlation_ref = ?", u.TransactionID).Error
		if err == nil {
			err = env.db.WithContext(ctx).First(&o, "id = ?", u.OrderID).Error
		}
		seen = append(seen, observed{tx: ptx.Status, order: o.Status, err: err})
	}

	_, err := svc.UpdateStatus(context.Background(), env.db, order.ID, &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	require.NoError(t, seen[0].err)
	assert.Equal(t, models.TransactionStatusCancelled, seen[0].tx)
	assert.Equal(t, models.OrderStatusCancelled, seen[0].order)
	assert.Contains(t, env.mobile.cancelled, resp.TransactionID)
}

func TestOrderService_RejectedCancelNotifiesNobody(t *testing.T) {
	env := newPaymentEnv(t)
	svc := services.NewOrderService(repositories.NewOrderRepository(), env.svc, "KES")
	order := helpers.CreateOrder(t, env.db, env.customer.ID, "500")
	resp := env.initiate(t, order.ID, "500")

	_, err := svc.UpdateStatus(context.Background(), env.db, order.ID, &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	published := len(env.publisher.forRef(resp.TransactionID))

	// повторная отмена: переход запрещен, ничего не публикуется
	_, err = svc.UpdateStatus(context.Background(), env.db, order.ID, &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCancelled})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderTransition)
	assert.Len(t, env.publisher.forRef(resp.TransactionID), published)
	assert.Len(t, env.mobile.cancelled, 1)
}

// ============================================================================
// Auth
// ============================================================================

func newAuthService(limit services.LoginLimit) (services.AuthService, *auth.TokenManager) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return services.NewAuthService(repositories.NewUserRepository(), tokens, limit), tokens
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	db := helpers.NewTestDB(t)
	svc, tokens := newAuthService(services.LoginLimit{MaxAttempts: 5, Window: 15 * time.Minute})
	ctx := context.Background()

	reg, err := svc.Register(ctx, db, &dto.RegisterRequest{
		Email: "Buyer@Example.com", Password: "password123", Name: "Buyer",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", reg.User.Email)
	assert.Equal(t, models.UserRoleCustomer, reg.User.Role)

	claims, err := tokens.ParseToken(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	_, err = svc.Register(ctx, db, &dto.RegisterRequest{Email: "buyer@example.com", Password: "password123", Name: "Again"})
	assert.ErrorIs(t, err, apperrors.ErrEmailAlreadyExists)

	login, err := svc.Login(ctx, db, &dto.LoginRequest{Email: "buyer@example.com", Password: "password123"}, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)

	_, err = svc.Login(ctx, db, &dto.LoginRequest{Email: "buyer@example.com", Password: "wrong-password"}, "127.0.0.1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	me, err := svc.Me(ctx, db, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buyer", me.Name)
}

func TestAuthService_LoginRateLimit(t *testing.T) {
	db := helpers.NewTestDB(t)
	svc, _ := newAuthService(services.LoginLimit{MaxAttempts: 3, Window: 15 * time.Minute})
	ctx := context.Background()
	helpers.CreateUser(t, db, "buyer@example.com", "password123", models.UserRoleCustomer)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, db, &dto.LoginRequest{Email: "buyer@example.com", Password: "bad-password"}, "10.0.0.1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}

	// даже верный пароль отклоняется, пока окно не истекло
	_, err := svc.Login(ctx, db, &dto.LoginRequest{Email: "buyer@example.com", Password: "password123"}, "10.0.0.1")
	require.ErrorIs(t, err, apperrors.ErrTooManyLoginAttempts)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.NotEmpty(t, details["retry_after"])
}

func TestAuthService_SeedAdmin(t *testing.T) {
	db := helpers.NewTestDB(t)
	svc, _ := newAuthService(services.LoginLimit{})
	ctx := context.Background()

	require.NoError(t, svc.SeedAdmin(ctx, db, "admin@example.com", "admin-password"))
	require.NoError(t, svc.SeedAdmin(ctx, db, "admin@example.com", "admin-password"), "повторный запуск ничего не делает")

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&admins).Error)
	assert.Equal(t, int64(1), admins)

	login, err := svc.Login(ctx, db, &dto.LoginRequest{Email: "admin@example.com", Password: "admin-password"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleAdmin, login.User.Role)
}
