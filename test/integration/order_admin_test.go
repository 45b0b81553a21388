package integration_test

import (
	"net/http"
	"testing"
	"time"

	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/models"
	"electroshop_backend/test/helpers"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrders_CreateAndRead(t *testing.T) {
	ts := helpers.NewTestServer(t)
	token, customer := ts.CreateAndLoginCustomer(t, "buyer@electroshop.test")
	otherToken, _ := ts.CreateAndLoginCustomer(t, "other@electroshop.test")

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"items": []map[string]interface{}{
			{"sku": "TV-55", "name": "55\" television", "quantity": 1, "unitPrice": "45000"},
			{"sku": "HDMI-2", "name": "HDMI cable", "quantity": 2, "unitPrice": "750.50"},
		},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)

	var order dto.OrderResponse
	helpers.DecodeJSON(t, body, &order)
	assert.Equal(t, customer.ID, order.UserID)
	assert.True(t, decimal.RequireFromString("46501").Equal(order.TotalAmount), "итог %s", order.TotalAmount)
	assert.Equal(t, "KES", order.Currency)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID, token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, body)

	// чужой заказ не виден
	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/orders?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var list dto.OrderListResponse
	helpers.DecodeJSON(t, body, &list)
	assert.EqualValues(t, 1, list.Total)

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestOrders_EmptyItemsRejected(t *testing.T) {
	ts := helpers.NewTestServer(t)
	token, _ := ts.CreateAndLoginCustomer(t, "buyer@electroshop.test")

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{"items": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	ts := helpers.NewTestServer(t)
	token, customer := ts.CreateAndLoginCustomer(t, "buyer@electroshop.test")
	order := helpers.CreateOrder(t, ts.DB, customer.ID, "100")

	res, _ := ts.SendRequest(t, http.MethodGet, "/api/v1/admin/orders/"+order.ID+"/transactions", token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = ts.SendRequest(t, http.MethodPatch, "/api/v1/admin/orders/"+order.ID+"/status", token, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

// Оплата при доставке: pending до подтверждения администратором
func TestAdmin_ConfirmCashOnDelivery(t *testing.T) {
	ts := helpers.NewTestServer(t)
	adminToken, _ := ts.CreateAndLoginAdmin(t)
	customer := helpers.CreateUser(t, ts.DB, "buyer@electroshop.test", helpers.TestPassword, models.UserRoleCustomer)
	order := helpers.CreateOrder(t, ts.DB, customer.ID, "2500")

	res, body := initiatePayment(t, ts, map[string]interface{}{
		"orderId":       order.ID,
		"amount":        2500,
		"payerContact":  payerPhone,
		"paymentMethod": "cash",
	})
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var initiated dto.InitiatePaymentResponse
	helpers.DecodeJSON(t, body, &initiated)

	_, status := pollStatus(t, ts, initiated.TransactionID)
	assert.Equal(t, models.TransactionStatusPending, status.Status)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/admin/payments/"+initiated.TransactionID+"/confirm", adminToken, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	_, status = pollStatus(t, ts, initiated.TransactionID)
	assert.Equal(t, models.TransactionStatusCompleted, status.Status)
	assert.Equal(t, models.VerificationStatusVerified, status.VerificationStatus)
	assert.Equal(t, models.PaymentStatusPaid, helpers.LoadOrder(t, ts.DB, order.ID).PaymentStatus)

	// повторное подтверждение
	res, _ = ts.SendRequest(t, http.MethodPost, "/api/v1/admin/payments/"+initiated.TransactionID+"/confirm", adminToken, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/admin/orders/"+order.ID+"/transactions", adminToken, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var listed struct {
		Transactions []dto.TransactionDTO `json:"transactions"`
	}
	helpers.DecodeJSON(t, body, &listed)
	require.Len(t, listed.Transactions, 1)
	assert.Equal(t, initiated.TransactionID, listed.Transactions[0].TransactionID)
	assert.Equal(t, models.PaymentMethodCash, listed.Transactions[0].PaymentMethod)
}

func TestAdmin_CancelOrderCancelsPendingPayment(t *testing.T) {
	ts := helpers.NewTestServer(t)
	adminToken, _ := ts.CreateAndLoginAdmin(t)
	customer := helpers.CreateUser(t, ts.DB, "buyer@electroshop.test", helpers.TestPassword, models.UserRoleCustomer)
	order := helpers.CreateOrder(t, ts.DB, customer.ID, "900")

	_, body := initiatePayment(t, ts, map[string]interface{}{
		"orderId":      order.ID,
		"amount":       900,
		"payerContact": payerPhone,
	})
	var initiated dto.InitiatePaymentResponse
	helpers.DecodeJSON(t, body, &initiated)

	res, body := ts.SendRequest(t, http.MethodPatch, "/api/v1/admin/orders/"+order.ID+"/status", adminToken, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	_, status := pollStatus(t, ts, initiated.TransactionID)
	assert.Equal(t, models.TransactionStatusCancelled, status.Status)

	// callback после отмены заказа не оплачивает его
	sendMpesaCallback(t, ts, initiated.TransactionID, 0, "900")
	assert.Equal(t, models.PaymentStatusPending, helpers.LoadOrder(t, ts.DB, order.ID).PaymentStatus)

	// недопустимый переход
	res, body = ts.SendRequest(t, http.MethodPatch, "/api/v1/admin/orders/"+order.ID+"/status", adminToken, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, res.StatusCode, body)
}

func TestOrders_ReceiptAfterPayment(t *testing.T) {
	ts := helpers.NewTestServer(t)
	token, customer := ts.CreateAndLoginCustomer(t, "buyer@electroshop.test")
	otherToken, _ := ts.CreateAndLoginCustomer(t, "other@electroshop.test")
	order := helpers.CreateOrder(t, ts.DB, customer.ID, "500")

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/receipt", token, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, body)

	_, body = initiatePayment(t, ts, map[string]interface{}{
		"orderId":      order.ID,
		"amount":       500,
		"payerContact": payerPhone,
	})
	var initiated dto.InitiatePaymentResponse
	helpers.DecodeJSON(t, body, &initiated)
	sendMpesaCallback(t, ts, initiated.TransactionID, 0, "500")

	// квитанция пишется асинхронно после фиксации оплаты
	var receipt string
	require.Eventually(t, func() bool {
		res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/receipt", token, nil)
		receipt = body
		return res.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, receipt, order.ID)
	assert.Contains(t, receipt, "NLJ7RT61SV")

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID+"/receipt", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
