package integration_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/models"
	"electroshop_backend/test/helpers"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(ts *helpers.TestServer, ref string) string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/payments/" + ref
}

func TestWS_StatusUpdatesPushed(t *testing.T) {
	ts := helpers.NewTestServer(t)
	customer := helpers.CreateUser(t, ts.DB, "buyer@electroshop.test", helpers.TestPassword, models.UserRoleCustomer)
	order := helpers.CreateOrder(t, ts.DB, customer.ID, "500")

	_, body := initiatePayment(t, ts, map[string]interface{}{
		"orderId":      order.ID,
		"amount":       500,
		"payerContact": payerPhone,
	})
	var initiated dto.InitiatePaymentResponse
	helpers.DecodeJSON(t, body, &initiated)
	require.NotEmpty(t, initiated.TransactionID)

	conn, res, err := websocket.DefaultDialer.Dial(wsURL(ts, initiated.TransactionID), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot dto.PaymentStatusResponse
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, models.TransactionStatusPending, snapshot.Status)

	sendMpesaCallback(t, ts, initiated.TransactionID, 0, "500")

	var update dto.PaymentStatusUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, initiated.TransactionID, update.TransactionID)
	assert.Equal(t, models.TransactionStatusCompleted, update.Status)
	assert.True(t, update.Verified)
}

func TestWS_UnknownTokenRejectedBeforeUpgrade(t *testing.T) {
	ts := helpers.NewTestServer(t)

	_, res, err := websocket.DefaultDialer.Dial(wsURL(ts, "ws_CO_unknown"), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
