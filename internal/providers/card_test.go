package providers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"electroshop_backend/internal/config"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/providers"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

// signStripe собирает заголовок Stripe-Signature: t=<ts>,v1=<hmac>
func signStripe(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func stripeEvent(eventType, intent string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":%s}}`, eventType, intent))
}

func newStripeAPI(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCard_DemoModeWithoutKey(t *testing.T) {
	a := providers.NewCardAdapter(config.StripeConfig{}, true, nil)
	res, err := a.Initiate(context.Background(), providers.InitiateRequest{
		OrderID: "O1", Amount: decimal.NewFromInt(10), Currency: "KES", PayerContact: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.True(t, res.IsDemo)

	_, err = providers.NewCardAdapter(config.StripeConfig{}, false, nil).Initiate(context.Background(), providers.InitiateRequest{})
	assert.ErrorIs(t, err, providers.ErrNotConfigured)
}

func TestCard_InitiateCreatesPaymentIntent(t *testing.T) {
	srv := newStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1999", r.PostForm.Get("amount"))
		assert.Equal(t, "kes", r.PostForm.Get("currency"))
		assert.Equal(t, "O1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("receipt_email"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":1999,"currency":"kes","status":"requires_payment_method","client_secret":"pi_123_secret_abc"}`))
	})

	a := providers.NewCardAdapter(config.StripeConfig{
		BackendURL: srv.URL,
		SecretKey:  "sk_test_123",
	}, false, srv.Client())

	res, err := a.Initiate(context.Background(), providers.InitiateRequest{
		OrderID:      "O1",
		Amount:       decimal.RequireFromString("19.99"),
		Currency:     "KES",
		PayerContact: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.CorrelationRef)
	assert.Equal(t, "pi_123_secret_abc", res.ClientSecret)
	assert.False(t, res.IsDemo)
	assert.NotEmpty(t, res.Metadata)
}

func TestCard_InitiateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad key", http.StatusUnauthorized, providers.ErrAuthFailed},
		{"card declined", http.StatusPaymentRequired, providers.ErrRejected},
		{"stripe down", http.StatusInternalServerError, providers.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"nope"}}`))
			})
			a := providers.NewCardAdapter(config.StripeConfig{BackendURL: srv.URL, SecretKey: "sk_test_123"}, false, srv.Client())

			_, err := a.Initiate(context.Background(), providers.InitiateRequest{
				OrderID: "O1", Amount: decimal.NewFromInt(10), Currency: "KES", PayerContact: "buyer@example.com",
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCard_QueryStatus(t *testing.T) {
	srv := newStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":1999,"amount_received":1999,"currency":"kes","status":"succeeded"}`))
	})
	a := providers.NewCardAdapter(config.StripeConfig{BackendURL: srv.URL, SecretKey: "sk_test_123"}, false, srv.Client())

	ev, err := a.QueryStatus(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, providers.OutcomeSuccess, ev.Outcome)
	require.NotNil(t, ev.Amount)
	assert.True(t, decimal.RequireFromString("19.99").Equal(*ev.Amount))
}

func TestCard_ParseWebhook(t *testing.T) {
	a := providers.NewCardAdapter(config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, false, nil)

	t.Run("succeeded", func(t *testing.T) {
		payload := stripeEvent("payment_intent.succeeded",
			`{"id":"pi_123","object":"payment_intent","amount":1999,"amount_received":1999,"currency":"kes","status":"succeeded"}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, testWebhookSecret, time.Now()))

		cb, err := a.ParseCallback(payload, headers)
		require.NoError(t, err)
		ev := cb.Event()
		assert.Equal(t, models.PaymentMethodCard, ev.Provider)
		assert.Equal(t, "pi_123", ev.CorrelationRef)
		assert.Equal(t, providers.OutcomeSuccess, ev.Outcome)
		assert.Equal(t, "pi_123", ev.Receipt)
		require.NotNil(t, ev.Amount)
		assert.True(t, decimal.RequireFromString("19.99").Equal(*ev.Amount))
	})

	t.Run("payment failed", func(t *testing.T) {
		payload := stripeEvent("payment_intent.payment_failed",
			`{"id":"pi_123","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"message":"Your card was declined."}}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, testWebhookSecret, time.Now()))

		cb, err := a.ParseCallback(payload, headers)
		require.NoError(t, err)
		assert.Equal(t, providers.OutcomeFailure, cb.Event().Outcome)
		assert.Equal(t, "Your card was declined.", cb.Event().Reason)
	})

	t.Run("canceled intent is a failure", func(t *testing.T) {
		payload := stripeEvent("payment_intent.canceled",
			`{"id":"pi_123","object":"payment_intent","status":"canceled","cancellation_reason":"abandoned"}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, testWebhookSecret, time.Now()))

		cb, err := a.ParseCallback(payload, headers)
		require.NoError(t, err)
		ev := cb.Event()
		assert.Equal(t, providers.OutcomeFailure, ev.Outcome)
		assert.Equal(t, "canceled: abandoned", ev.Reason)
		assert.Nil(t, ev.Amount)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		payload := stripeEvent("payment_intent.created", `{"id":"pi_123","object":"payment_intent","status":"requires_payment_method"}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, testWebhookSecret, time.Now()))

		cb, err := a.ParseCallback(payload, headers)
		require.NoError(t, err)
		assert.Equal(t, providers.OutcomeIgnored, cb.Event().Outcome)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := stripeEvent("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent","status":"succeeded"}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, "whsec_other", time.Now()))

		_, err := a.ParseCallback(payload, headers)
		assert.ErrorIs(t, err, providers.ErrInvalidSignature)
	})

	t.Run("stale signature", func(t *testing.T) {
		payload := stripeEvent("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent","status":"succeeded"}`)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signStripe(payload, testWebhookSecret, time.Now().Add(-time.Hour)))

		_, err := a.ParseCallback(payload, headers)
		assert.ErrorIs(t, err, providers.ErrInvalidSignature)
	})
}

// Неподписанное событие проходит только в демо без ключа Stripe
func TestCard_UnsignedWebhook(t *testing.T) {
	payload := stripeEvent("payment_intent.succeeded",
		`{"id":"pi_123","object":"payment_intent","amount":1999,"amount_received":1999,"currency":"kes","status":"succeeded"}`)

	t.Run("demo without key accepts", func(t *testing.T) {
		cb, err := providers.NewCardAdapter(config.StripeConfig{}, true, nil).ParseCallback(payload, http.Header{})
		require.NoError(t, err)
		assert.Equal(t, providers.OutcomeSuccess, cb.Event().Outcome)
	})

	t.Run("live key without webhook secret rejects", func(t *testing.T) {
		a := providers.NewCardAdapter(config.StripeConfig{SecretKey: "sk_live_x"}, true, nil)
		_, err := a.ParseCallback(payload, http.Header{})
		assert.ErrorIs(t, err, providers.ErrNotConfigured)
	})

	t.Run("demo disabled rejects", func(t *testing.T) {
		_, err := providers.NewCardAdapter(config.StripeConfig{}, false, nil).ParseCallback(payload, http.Header{})
		assert.ErrorIs(t, err, providers.ErrNotConfigured)
	})
}

func TestCard_QueryStatusCanceledIntent(t *testing.T) {
	srv := newStripeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_9","object":"payment_intent","amount":500,"currency":"kes","status":"canceled","cancellation_reason":"requested_by_customer"}`))
	})
	a := providers.NewCardAdapter(config.StripeConfig{BackendURL: srv.URL, SecretKey: "sk_test_123"}, false, srv.Client())

	ev, err := a.QueryStatus(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, providers.OutcomeFailure, ev.Outcome)
	assert.Equal(t, "canceled: requested_by_customer", ev.Reason)
}

func TestRegistry(t *testing.T) {
	reg := providers.NewRegistry(
		providers.NewMpesaAdapter(config.MpesaConfig{}, true, nil),
		providers.NewCashAdapter(),
	)

	a, err := reg.Get(models.PaymentMethodCash)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodCash, a.Method())

	_, err = reg.Get(models.PaymentMethodCard)
	assert.ErrorIs(t, err, providers.ErrUnknownMethod)
}
