package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"electroshop_backend/internal/config"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/utils"

	"github.com/shopspring/decimal"
)

// Коды результата STK push
const (
	mpesaResultSuccess        = 0
	mpesaQueryStillProcessing = "500.001.1001"
)

// eat - время Найроби, в нем Daraja ждет Timestamp
var eat = time.FixedZone("EAT", 3*60*60)

// MpesaAdapter - M-Pesa Daraja STK push
type MpesaAdapter struct {
	cfg       config.MpesaConfig
	allowDemo bool
	client    *http.Client
	now       func() time.Time
}

func NewMpesaAdapter(cfg config.MpesaConfig, allowDemo bool, client *http.Client) *MpesaAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MpesaAdapter{
		cfg:       cfg,
		allowDemo: allowDemo,
		client:    client,
		now:       time.Now,
	}
}

func (a *MpesaAdapter) Method() models.PaymentMethod {
	return models.PaymentMethodMobileMoney
}

// ============================================================================
// Инициация (STK push)
// ============================================================================

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// darajaError - тело ошибки Daraja (4xx/5xx)
type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (a *MpesaAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if !a.cfg.Configured() {
		if !a.allowDemo {
			return nil, ErrNotConfigured
		}
		logger.CtxWarn(ctx, "M-Pesa credentials are not configured, issuing demo token", "order_id", req.OrderID)
		return demoResult("Demo mode: no STK push was sent"), nil
	}

	msisdn, ok := utils.NormalizeMSISDN(req.PayerContact)
	if !ok {
		return nil, fmt.Errorf("%w: invalid phone number", ErrRejected)
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := a.now().In(eat).Format("20060102150405")
	body := stkPushRequest{
		BusinessShortCode: a.cfg.ShortCode,
		Password:          a.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            msisdn,
		PartyB:            a.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       a.cfg.CallbackURL,
		AccountReference:  accountReference(req.OrderID),
		TransactionDesc:   "Order payment",
	}

	start := time.Now()
	raw, status, err := a.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, body)
	logger.ProviderLog(string(a.Method()), "stkpush", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyDarajaError(status, raw)
	}

	var resp stkPushResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: unexpected stkpush response: %v", ErrUnavailable, err)
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.ResponseDescription)
	}

	return &InitiateResult{
		CorrelationRef: resp.CheckoutRequestID,
		Message:        resp.CustomerMessage,
		Metadata:       raw,
	}, nil
}

// ============================================================================
// Опрос статуса (STK push query)
// ============================================================================

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode      string      `json:"ResponseCode"`
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        *resultCode `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
}

func (a *MpesaAdapter) QueryStatus(ctx context.Context, ref string) (*Event, error) {
	if IsDemoRef(ref) || !a.cfg.Configured() {
		return &Event{Provider: a.Method(), CorrelationRef: ref, Outcome: OutcomePending}, nil
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := a.now().In(eat).Format("20060102150405")
	start := time.Now()
	raw, status, err := a.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, stkQueryRequest{
		BusinessShortCode: a.cfg.ShortCode,
		Password:          a.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: ref,
	})
	logger.ProviderLog(string(a.Method()), "stkpushquery", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var de darajaError
		if json.Unmarshal(raw, &de) == nil && de.ErrorCode == mpesaQueryStillProcessing {
			return &Event{Provider: a.Method(), CorrelationRef: ref, Outcome: OutcomePending, Raw: raw}, nil
		}
		return nil, classifyDarajaError(status, raw)
	}

	var resp stkQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: unexpected stkpushquery response: %v", ErrUnavailable, err)
	}

	// Без ResultCode запрос еще обрабатывается
	if resp.ResultCode == nil {
		return &Event{Provider: a.Method(), CorrelationRef: ref, Outcome: OutcomePending, Raw: raw}, nil
	}

	ev := &Event{
		Provider:       a.Method(),
		CorrelationRef: ref,
		Outcome:        mpesaOutcome(int(*resp.ResultCode)),
		Raw:            raw,
	}
	if ev.Outcome != OutcomeSuccess {
		ev.Reason = resp.ResultDesc
	}
	return ev, nil
}

// ConfirmsCallbacks: Daraja не подписывает callback, реальный токен сверяется через stkpushquery.
// Демо-токены деньги не двигают.
func (a *MpesaAdapter) ConfirmsCallbacks(ref string) bool {
	return a.cfg.Configured() && !IsDemoRef(ref)
}

// Cancel - у STK push нет отмены на стороне провайдера
func (a *MpesaAdapter) Cancel(ctx context.Context, ref string) error {
	return nil
}

// ============================================================================
// Callback
// ============================================================================

// MpesaCallback - тело, которое Daraja шлет на CallBackURL
type MpesaCallback struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`

	raw json.RawMessage
}

type StkCallback struct {
	MerchantRequestID string      `json:"MerchantRequestID"`
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        *resultCode `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []MpesaMetadataItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

type MpesaMetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

func (*MpesaCallback) callback() {}

func (c *MpesaCallback) Event() Event {
	stk := c.Body.StkCallback
	ev := Event{
		Provider:       models.PaymentMethodMobileMoney,
		CorrelationRef: stk.CheckoutRequestID,
		Outcome:        mpesaOutcome(int(*stk.ResultCode)),
		Raw:            c.raw,
	}
	if ev.Outcome != OutcomeSuccess {
		ev.Reason = stk.ResultDesc
		return ev
	}

	if stk.CallbackMetadata != nil {
		for _, item := range stk.CallbackMetadata.Item {
			switch item.Name {
			case "MpesaReceiptNumber":
				ev.Receipt = rawString(item.Value)
			case "Amount":
				var amount decimal.Decimal
				if err := amount.UnmarshalJSON(item.Value); err == nil {
					ev.Amount = &amount
				}
			}
		}
	}
	return ev
}

func (a *MpesaAdapter) ParseCallback(raw []byte, _ http.Header) (Callback, error) {
	cb := &MpesaCallback{raw: append(json.RawMessage(nil), raw...)}
	if err := json.Unmarshal(raw, cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	stk := cb.Body.StkCallback
	if stk == nil || stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing Body.stkCallback.CheckoutRequestID", ErrMalformedCallback)
	}
	if stk.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback.ResultCode", ErrMalformedCallback)
	}
	return cb, nil
}

// ============================================================================
// HTTP
// ============================================================================

func (a *MpesaAdapter) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(a.cfg.ShortCode + a.cfg.Passkey + timestamp))
}

// accessToken - OAuth client credentials; токен запрашивается на каждую операцию
func (a *MpesaAdapter) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.SetBasicAuth(a.cfg.ConsumerKey, a.cfg.ConsumerSecret)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		logger.ProviderLog(string(a.Method()), "oauth", time.Since(start), err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: oauth returned %d", ErrAuthFailed, resp.StatusCode)
		logger.ProviderLog(string(a.Method()), "oauth", time.Since(start), err)
		return "", err
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}
	logger.ProviderLog(string(a.Method()), "oauth", time.Since(start), nil)
	return body.AccessToken, nil
}

func (a *MpesaAdapter) postJSON(ctx context.Context, path, token string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, resp.StatusCode, nil
}

func classifyDarajaError(status int, raw []byte) error {
	var de darajaError
	_ = json.Unmarshal(raw, &de)
	msg := de.ErrorMessage
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
}

// mpesaOutcome: любой ненулевой код, включая 1032 (клиент закрыл STK-запрос), это отказ;
// причина остается в ResultDesc
func mpesaOutcome(code int) Outcome {
	if code == mpesaResultSuccess {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// accountReference - Daraja ограничивает поле 12 символами
func accountReference(orderID string) string {
	ref := strings.ReplaceAll(orderID, "-", "")
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}

// resultCode принимает и число, и строку: callback шлет 0, query шлет "0"
type resultCode int

func (r *resultCode) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*r = resultCode(n)
	return nil
}

func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}
