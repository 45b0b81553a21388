package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"electroshop_backend/internal/config"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
	stripeEventCanceled  = "payment_intent.canceled"
)

// CardAdapter - оплата картой через Stripe PaymentIntent.
// Клиент Stripe собирается из конфига при старте, глобальный stripe.Key не используется.
type CardAdapter struct {
	cfg       config.StripeConfig
	allowDemo bool
	api       *client.API
}

func NewCardAdapter(cfg config.StripeConfig, allowDemo bool, httpClient *http.Client) *CardAdapter {
	a := &CardAdapter{cfg: cfg, allowDemo: allowDemo}
	if !cfg.Configured() {
		return a
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	a.api = client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return a
}

func (a *CardAdapter) Method() models.PaymentMethod {
	return models.PaymentMethodCard
}

func (a *CardAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if a.api == nil {
		if !a.allowDemo {
			return nil, ErrNotConfigured
		}
		logger.CtxWarn(ctx, "Stripe key is not configured, issuing demo token", "order_id", req.OrderID)
		return demoResult("Demo mode: no PaymentIntent was created"), nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		ReceiptEmail:       stripe.String(req.PayerContact),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)

	start := time.Now()
	pi, err := a.api.PaymentIntents.New(params)
	logger.ProviderLog(string(a.Method()), "payment_intent.create", time.Since(start), err)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	return &InitiateResult{
		CorrelationRef: pi.ID,
		Message:        "Confirm the card payment to complete the order",
		ClientSecret:   pi.ClientSecret,
		Metadata:       intentMetadata(pi),
	}, nil
}

func (a *CardAdapter) QueryStatus(ctx context.Context, ref string) (*Event, error) {
	if a.api == nil || IsDemoRef(ref) {
		return &Event{Provider: a.Method(), CorrelationRef: ref, Outcome: OutcomePending}, nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	start := time.Now()
	pi, err := a.api.PaymentIntents.Get(ref, params)
	logger.ProviderLog(string(a.Method()), "payment_intent.get", time.Since(start), err)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	ev := intentEvent(pi, intentOutcome(pi))
	ev.Raw = intentMetadata(pi)
	return &ev, nil
}

func (a *CardAdapter) Cancel(ctx context.Context, ref string) error {
	if a.api == nil || IsDemoRef(ref) {
		return nil
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	start := time.Now()
	_, err := a.api.PaymentIntents.Cancel(ref, params)
	logger.ProviderLog(string(a.Method()), "payment_intent.cancel", time.Since(start), err)
	if err != nil {
		return classifyStripeError(err)
	}
	return nil
}

// ============================================================================
// Webhook
// ============================================================================

// CardCallback - событие Stripe c PaymentIntent внутри
type CardCallback struct {
	EventID string
	Type    string
	Intent  stripe.PaymentIntent

	raw json.RawMessage
}

func (*CardCallback) callback() {}

func (c *CardCallback) Event() Event {
	var outcome Outcome
	switch c.Type {
	case stripeEventSucceeded:
		outcome = OutcomeSuccess
	case stripeEventFailed, stripeEventCanceled:
		// отмену intent'а сообщил провайдер, для нас это отказ
		outcome = OutcomeFailure
	default:
		outcome = OutcomeIgnored
	}
	ev := intentEvent(&c.Intent, outcome)
	ev.Raw = c.raw
	return ev
}

func (a *CardAdapter) ParseCallback(raw []byte, headers http.Header) (Callback, error) {
	var (
		event stripe.Event
		err   error
	)

	switch {
	case a.cfg.WebhookSecret != "":
		event, err = webhook.ConstructEvent(raw, headers.Get("Stripe-Signature"), a.cfg.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	case a.api == nil && a.allowDemo:
		// Демо-режим без ключа Stripe: подписи нет, тело принимается как есть
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
	default:
		return nil, ErrNotConfigured
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedCallback, event.ID)
	}

	cb := &CardCallback{
		EventID: event.ID,
		Type:    event.Type,
		raw:     append(json.RawMessage(nil), raw...),
	}
	if strings.HasPrefix(event.Type, "payment_intent.") {
		if err := json.Unmarshal(event.Data.Raw, &cb.Intent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
		if cb.Intent.ID == "" {
			return nil, fmt.Errorf("%w: payment intent without id", ErrMalformedCallback)
		}
	}
	return cb, nil
}

// ============================================================================
// Вспомогательные
// ============================================================================

func intentOutcome(pi *stripe.PaymentIntent) Outcome {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return OutcomeSuccess
	case stripe.PaymentIntentStatusCanceled:
		return OutcomeFailure
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// Новый intent тоже ждет метод оплаты; отказом считаем только после ошибки
		if pi.LastPaymentError != nil {
			return OutcomeFailure
		}
		return OutcomePending
	default:
		return OutcomePending
	}
}

func intentEvent(pi *stripe.PaymentIntent, outcome Outcome) Event {
	ev := Event{
		Provider:       models.PaymentMethodCard,
		CorrelationRef: pi.ID,
		Outcome:        outcome,
	}

	switch outcome {
	case OutcomeSuccess:
		ev.Receipt = pi.ID
		if pi.Charges != nil && len(pi.Charges.Data) > 0 && pi.Charges.Data[0] != nil {
			ev.Receipt = pi.Charges.Data[0].ID
		}
		received := pi.AmountReceived
		if received == 0 {
			received = pi.Amount
		}
		amount := decimal.New(received, -2)
		ev.Amount = &amount
	case OutcomeFailure:
		switch {
		case pi.LastPaymentError != nil:
			ev.Reason = pi.LastPaymentError.Msg
		case pi.Status == stripe.PaymentIntentStatusCanceled:
			ev.Reason = "canceled"
			if pi.CancellationReason != "" {
				ev.Reason += ": " + string(pi.CancellationReason)
			}
		}
	}
	return ev
}

func intentMetadata(pi *stripe.PaymentIntent) json.RawMessage {
	if pi.LastResponse != nil && len(pi.LastResponse.RawJSON) > 0 {
		return pi.LastResponse.RawJSON
	}
	raw, err := json.Marshal(pi)
	if err != nil {
		return nil
	}
	return raw
}

// toMinorUnits - сумма в центах
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, se.Msg)
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %s", ErrUnavailable, se.Msg)
		case se.HTTPStatusCode >= 400:
			return fmt.Errorf("%w: %s", ErrRejected, se.Msg)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
