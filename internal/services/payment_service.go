package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/config"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/email"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/providers"
	"electroshop_backend/internal/repositories"
	"electroshop_backend/internal/storage"
	"electroshop_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Причины перевода в терминальный статус, которые выставляет сам сервис
const (
	ReasonSuperseded      = "superseded"
	ReasonCancelledByUser = "cancelled_by_user"
	ReasonOrderCancelled  = "order_cancelled"
	ReasonExpired         = "expired"
	ReasonAmountMismatch  = "amount_mismatch"
	ReasonProviderFailure = "provider_reported_failure"

	maxReasonLen       = 255
	maxReplayAttempts  = 10
	receiptSendTimeout = 30 * time.Second
)

// StatusPublisher получает каждую смену статуса транзакции (WebSocket)
type StatusPublisher interface {
	Publish(update dto.PaymentStatusUpdate)
}

type noopPublisher struct{}

func (noopPublisher) Publish(dto.PaymentStatusUpdate) {}

type PaymentService struct {
	orderRepo    repositories.OrderRepository
	txRepo       repositories.TransactionRepository
	callbackRepo repositories.CallbackRepository
	userRepo     repositories.UserRepository
	providers    *providers.Registry
	cfg          config.PaymentsConfig
	sweep        config.SweepConfig
	publisher    StatusPublisher
	mailer       email.Sender
	archive      *ReceiptArchive
	now          func() time.Time
}

func NewPaymentService(
	orderRepo repositories.OrderRepository,
	txRepo repositories.TransactionRepository,
	callbackRepo repositories.CallbackRepository,
	userRepo repositories.UserRepository,
	registry *providers.Registry,
	cfg config.PaymentsConfig,
	sweep config.SweepConfig,
	publisher StatusPublisher,
	mailer email.Sender,
	archive *ReceiptArchive,
) *PaymentService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if mailer == nil {
		mailer = email.NoopSender{}
	}
	return &PaymentService{
		orderRepo:    orderRepo,
		txRepo:       txRepo,
		callbackRepo: callbackRepo,
		userRepo:     userRepo,
		providers:    registry,
		cfg:          cfg,
		sweep:        sweep,
		publisher:    publisher,
		mailer:       mailer,
		archive:      archive,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// Инициация
// ============================================================================

// Initiate создает попытку оплаты: провайдер выдает токен, в БД появляется pending-транзакция.
// Заказ не меняется.
func (s *PaymentService) Initiate(ctx context.Context, db *gorm.DB, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ValidationError(map[string]string{"amount": "Must be greater than 0"})
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentMethodMobileMoney
	}
	adapter, err := s.providers.Get(method)
	if err != nil {
		return nil, apperrors.ErrUnsupportedPaymentMethod.WithDetails(map[string]string{"paymentMethod": string(method)})
	}

	order, err := s.orderRepo.FindByID(db.WithContext(ctx), req.OrderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		logger.CtxWithError(ctx, "Failed to load order for payment", err, "order_id", req.OrderID)
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, apperrors.ErrOrderAlreadyPaid
	}
	if !order.IsPayable() {
		return nil, apperrors.ErrOrderNotPayable.WithDetails(map[string]string{"status": string(order.Status)})
	}
	// verified-транзакция доказывает оплату всего заказа, поэтому сумма строго равна итогу
	if !req.Amount.Equal(order.TotalAmount) {
		return nil, apperrors.ErrAmountNotOrderTotal.WithDetails(map[string]string{
			"amount":      req.Amount.String(),
			"orderTotal":  order.TotalAmount.String(),
			"orderStatus": string(order.Status),
		})
	}

	currency := order.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	// Вызов провайдера ограничен по времени
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	res, err := adapter.Initiate(pctx, providers.InitiateRequest{
		OrderID:      order.ID,
		Amount:       req.Amount,
		Currency:     currency,
		PayerContact: req.PayerContact,
		Description:  "Order " + order.ID,
	})
	cancel()
	if err != nil {
		return nil, s.providerError(ctx, method, err)
	}

	ctx = logger.WithCorrelationID(ctx, res.CorrelationRef)
	now := s.now()
	ptx := &models.PaymentTransaction{
		OrderID:            order.ID,
		Amount:             req.Amount,
		Currency:           currency,
		PaymentMethod:      method,
		PayerContact:       req.PayerContact,
		Status:             models.TransactionStatusPending,
		VerificationStatus: models.VerificationStatusPending,
		CorrelationRef:     res.CorrelationRef,
		IsDemo:             res.IsDemo,
		ProviderMetadata:   jsonOrNull(res.Metadata),
	}

	// Провайдер уже выдал токен: запись делаем даже если клиент отключился
	storeDB := db.WithContext(context.WithoutCancel(ctx))
	var superseded []string
	err = withTx(storeDB, func(tx *gorm.DB) error {
		var err error
		superseded, err = s.txRepo.CancelPending(tx, order.ID, method, ReasonSuperseded, now)
		if err != nil {
			return err
		}
		return s.txRepo.Create(tx, ptx)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionConflict) {
			logger.CtxWarn(ctx, "Concurrent payment attempt detected", "order_id", order.ID, "method", method)
			return nil, apperrors.ErrPaymentInProgress
		}
		logger.CtxWithError(ctx, "Failed to persist payment transaction after provider accepted it", err,
			"order_id", order.ID,
			"method", method,
			"correlation_ref", res.CorrelationRef,
		)
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}

	for _, ref := range superseded {
		s.publish(ref, order.ID, models.TransactionStatusCancelled, models.VerificationStatusFailed, ReasonSuperseded, now)
		s.cancelAtProvider(ctx, adapter, ref)
	}
	s.publish(ptx.CorrelationRef, order.ID, ptx.Status, ptx.VerificationStatus, "", now)

	logger.CtxInfo(ctx, "Payment initiated",
		"order_id", order.ID,
		"method", method,
		"amount", req.Amount.String(),
		"demo", res.IsDemo,
		"superseded", len(superseded),
	)

	message := res.Message
	if message == "" {
		message = "Payment initiated"
	}
	return &dto.InitiatePaymentResponse{
		Success:       true,
		TransactionID: ptx.CorrelationRef,
		Message:       message,
		IsDemo:        res.IsDemo,
		ClientSecret:  res.ClientSecret,
	}, nil
}

// providerError переводит ошибку адаптера в таксономию API
func (s *PaymentService) providerError(ctx context.Context, method models.PaymentMethod, err error) error {
	switch {
	case errors.Is(err, providers.ErrRejected):
		logger.CtxWarn(ctx, "Provider rejected payment", "method", method, "error", err.Error())
		return apperrors.ErrProviderReportedFailure.WithDetails(map[string]string{"reason": err.Error()}).WithError(err)
	default:
		// auth, сеть, таймаут, отключенный демо-режим
		logger.CtxWithError(ctx, "Payment provider unavailable", err, "method", method)
		return apperrors.ErrProviderUnavailable.WithError(err)
	}
}

func (s *PaymentService) cancelAtProvider(ctx context.Context, adapter providers.Adapter, ref string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProviderTimeout)
	defer cancel()
	if err := adapter.Cancel(cctx, ref); err != nil {
		logger.CtxWithError(ctx, "Failed to cancel payment at provider", err, "correlation_ref", ref)
	}
}

// ============================================================================
// Callback
// ============================================================================

// HandleCallback разбирает callback провайдера, пишет его в журнал и применяет.
// Ошибка возвращается только для логов: провайдер всегда получает успешный ответ.
func (s *PaymentService) HandleCallback(ctx context.Context, db *gorm.DB, method models.PaymentMethod, raw []byte, headers http.Header) error {
	adapter, err := s.providers.Get(method)
	if err != nil {
		return err
	}
	db = db.WithContext(ctx)
	now := s.now()

	record := &models.PaymentCallback{
		Provider: method,
		Payload:  jsonOrString(raw),
	}

	cb, parseErr := adapter.ParseCallback(raw, headers)
	if parseErr != nil {
		record.Outcome = models.CallbackOutcomeMalformed
		record.Error = truncate(parseErr.Error(), 1000)
		record.ProcessedAt = &now
		if err := s.callbackRepo.Create(db, record); err != nil {
			logger.CtxWithError(ctx, "Failed to record malformed callback", err, "provider", method)
		}
		logger.CtxWarn(ctx, "Malformed payment callback", "provider", method, "error", parseErr.Error())
		return parseErr
	}

	ev := cb.Event()
	ctx = logger.WithCorrelationID(ctx, ev.CorrelationRef)
	record.CorrelationRef = ev.CorrelationRef
	record.Outcome = ev.Outcome
	record.Receipt = truncate(ev.Receipt, maxReasonLen)
	record.Reason = truncate(ev.Reason, maxReasonLen)
	if ev.Amount != nil {
		record.Amount = decimal.NewNullDecimal(*ev.Amount)
	}

	if err := s.callbackRepo.Create(db, record); err != nil {
		// Журнал не должен мешать применению события
		logger.CtxWithError(ctx, "Failed to record payment callback", err, "provider", method)
		record.ID = ""
	}

	if !ev.IsTerminal() {
		logger.CtxDebug(ctx, "Callback does not change payment status", "provider", method, "outcome", ev.Outcome)
		return nil
	}

	ev, confirmed := s.confirmEvent(ctx, adapter, ev)
	if !confirmed {
		return nil
	}
	_, err = s.applyEvent(ctx, db, ev, record.ID)
	return err
}

// confirmEvent сверяет терминальный callback с провайдером, если тот не подписывает callback'и.
// false - провайдер результата не подтвердил, callback остается несопоставленным до повтора.
// Исход и сумма берутся из ответа провайдера, тело callback'а им не доверяется.
func (s *PaymentService) confirmEvent(ctx context.Context, adapter providers.Adapter, ev providers.Event) (providers.Event, bool) {
	confirmer, ok := adapter.(providers.CallbackConfirmer)
	if !ok || !confirmer.ConfirmsCallbacks(ev.CorrelationRef) {
		return ev, true
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	queried, err := adapter.QueryStatus(qctx, ev.CorrelationRef)
	cancel()
	if err != nil {
		logger.CtxWithError(ctx, "Failed to confirm callback with provider", err, "provider", ev.Provider)
		return ev, false
	}
	if !queried.IsTerminal() {
		logger.CtxWarn(ctx, "Provider has no result for callback yet", "provider", ev.Provider, "outcome", ev.Outcome)
		return ev, false
	}

	confirmed := *queried
	confirmed.Raw = ev.Raw
	if confirmed.Outcome != ev.Outcome {
		logger.CtxWarn(ctx, "Callback outcome contradicts provider",
			"provider", ev.Provider,
			"callback_outcome", ev.Outcome,
			"provider_outcome", confirmed.Outcome,
		)
		return confirmed, true
	}
	// stkpushquery не отдает номер квитанции, он есть только в callback'е
	if confirmed.Receipt == "" {
		confirmed.Receipt = ev.Receipt
	}
	if confirmed.Reason == "" {
		confirmed.Reason = ev.Reason
	}
	return confirmed, true
}

// applyResult - итог применения события
type applyResult struct {
	Matched bool
	Applied bool
	Tx      *models.PaymentTransaction
}

// applyEvent - общий путь для callback'ов, опроса, подтверждения наличных и повторов.
// Переход делается одним условным UPDATE ... WHERE status = 'pending'.
func (s *PaymentService) applyEvent(ctx context.Context, db *gorm.DB, ev providers.Event, callbackID string) (*applyResult, error) {
	now := s.now()
	result := &applyResult{}
	var upd repositories.TerminalUpdate

	err := withTx(db, func(tx *gorm.DB) error {
		ptx, err := s.txRepo.FindByCorrelationRef(tx, ev.CorrelationRef)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				return nil
			}
			return err
		}
		result.Matched = true
		result.Tx = ptx

		upd = s.terminalUpdate(ptx, ev, now)
		ok, err := s.txRepo.TransitionFromPending(tx, ev.CorrelationRef, upd)
		if err != nil {
			return err
		}
		result.Applied = ok

		if ok && upd.Status == models.TransactionStatusCompleted && upd.VerificationStatus == models.VerificationStatusVerified {
			flipped, err := s.orderRepo.MarkPaid(tx, ptx.OrderID)
			if err != nil {
				return err
			}
			if !flipped {
				logger.CtxWarn(ctx, "Order was already paid by another transaction", "order_id", ptx.OrderID)
			}
		}

		if callbackID != "" {
			return s.callbackRepo.MarkMatched(tx, callbackID, ok, now)
		}
		return nil
	})
	if err != nil {
		logger.CtxWithError(ctx, "Failed to apply payment event", err, "provider", ev.Provider, "outcome", ev.Outcome)
		return nil, err
	}

	switch {
	case !result.Matched:
		logger.CtxWarn(ctx, "Payment event for unknown transaction", "provider", ev.Provider, "outcome", ev.Outcome)
	case !result.Applied:
		logger.CtxInfo(ctx, "Payment event ignored: transaction already terminal",
			"provider", ev.Provider,
			"outcome", ev.Outcome,
			"status", result.Tx.Status,
		)
	default:
		ptx := result.Tx
		ptx.Status = upd.Status
		ptx.VerificationStatus = upd.VerificationStatus
		ptx.ProviderReceipt = upd.ProviderReceipt
		ptx.FailureReason = upd.FailureReason
		logger.CtxInfo(ctx, "Payment transaction finalized",
			"order_id", ptx.OrderID,
			"status", upd.Status,
			"verification_status", upd.VerificationStatus,
			"reason", upd.FailureReason,
		)
		s.publish(ptx.CorrelationRef, ptx.OrderID, upd.Status, upd.VerificationStatus, upd.FailureReason, now)
		if ptx.IsVerified() {
			s.sendReceipt(ctx, db, ptx, now)
		}
	}
	return result, nil
}

// terminalUpdate решает, в какой статус перевести транзакцию по событию
func (s *PaymentService) terminalUpdate(ptx *models.PaymentTransaction, ev providers.Event, now time.Time) repositories.TerminalUpdate {
	upd := repositories.TerminalUpdate{
		CallbackPayload: jsonOrNull(ev.Raw),
		At:              now,
	}

	switch ev.Outcome {
	case providers.OutcomeSuccess:
		// Оплачено меньше, чем ожидалось: деньги пришли, но заказ не подтверждаем
		if ev.Amount != nil && ev.Amount.LessThan(ptx.Amount) {
			upd.Status = models.TransactionStatusFailed
			upd.VerificationStatus = models.VerificationStatusFailed
			upd.ProviderReceipt = truncate(ev.Receipt, maxReasonLen)
			upd.FailureReason = ReasonAmountMismatch
			return upd
		}
		upd.Status = models.TransactionStatusCompleted
		upd.VerificationStatus = models.VerificationStatusVerified
		upd.ProviderReceipt = truncate(ev.Receipt, maxReasonLen)
	default:
		// отказ провайдера, в том числе отмененный на его стороне запрос
		upd.Status = models.TransactionStatusFailed
		upd.VerificationStatus = models.VerificationStatusFailed
		upd.FailureReason = truncate(ev.Reason, maxReasonLen)
		if upd.FailureReason == "" {
			upd.FailureReason = ReasonProviderFailure
		}
	}
	return upd
}

// ============================================================================
// Статус, отмена, ручное подтверждение
// ============================================================================

// GetStatus - только чтение
func (s *PaymentService) GetStatus(ctx context.Context, db *gorm.DB, ref string) (*dto.PaymentStatusResponse, error) {
	ptx, err := s.findTransaction(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	return statusResponse(ptx), nil
}

// Cancel отменяет попытку, пока провайдер не прислал результат
func (s *PaymentService) Cancel(ctx context.Context, db *gorm.DB, ref string) (*dto.PaymentStatusResponse, error) {
	ptx, err := s.findTransaction(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	if ptx.Status.IsTerminal() {
		return nil, apperrors.ErrTransactionNotPending.WithDetails(map[string]string{"status": string(ptx.Status)})
	}

	now := s.now()
	ok, err := s.txRepo.TransitionFromPending(db.WithContext(ctx), ref, repositories.TerminalUpdate{
		Status:             models.TransactionStatusCancelled,
		VerificationStatus: models.VerificationStatusFailed,
		FailureReason:      ReasonCancelledByUser,
		At:                 now,
	})
	if err != nil {
		logger.CtxWithError(ctx, "Failed to cancel payment transaction", err, "correlation_ref", ref)
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}
	if !ok {
		// callback успел раньше
		return nil, apperrors.ErrTransactionNotPending
	}

	if adapter, err := s.providers.Get(ptx.PaymentMethod); err == nil {
		s.cancelAtProvider(ctx, adapter, ref)
	}

	ptx.Status = models.TransactionStatusCancelled
	ptx.VerificationStatus = models.VerificationStatusFailed
	s.publish(ref, ptx.OrderID, ptx.Status, ptx.VerificationStatus, ReasonCancelledByUser, now)
	logger.CtxInfo(ctx, "Payment transaction cancelled", "correlation_ref", ref, "order_id", ptx.OrderID)

	resp := statusResponse(ptx)
	resp.Message = "Payment cancelled"
	return resp, nil
}

// ConfirmCash - администратор подтверждает, что курьер получил деньги
func (s *PaymentService) ConfirmCash(ctx context.Context, db *gorm.DB, ref, adminID string) (*dto.PaymentStatusResponse, error) {
	ptx, err := s.findTransaction(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	if ptx.PaymentMethod != models.PaymentMethodCash {
		return nil, apperrors.ErrUnsupportedPaymentMethod.WithDetails(map[string]string{
			"paymentMethod": string(ptx.PaymentMethod),
			"reason":        "only cash on delivery can be confirmed manually",
		})
	}
	if ptx.Status.IsTerminal() {
		return nil, apperrors.ErrTransactionNotPending.WithDetails(map[string]string{"status": string(ptx.Status)})
	}

	confirmation := &providers.CashConfirmation{
		CorrelationRef: ref,
		ConfirmedBy:    adminID,
		Amount:         ptx.Amount,
		ConfirmedAt:    s.now(),
	}
	ev := confirmation.Event()

	db = db.WithContext(ctx)
	record := &models.PaymentCallback{
		Provider:       models.PaymentMethodCash,
		CorrelationRef: ref,
		Outcome:        ev.Outcome,
		Payload:        jsonOrNull(ev.Raw),
		Receipt:        ev.Receipt,
		Amount:         decimal.NewNullDecimal(ptx.Amount),
	}
	if err := s.callbackRepo.Create(db, record); err != nil {
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}

	res, err := s.applyEvent(ctx, db, ev, record.ID)
	if err != nil {
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}
	if !res.Applied {
		return nil, apperrors.ErrTransactionNotPending
	}

	resp := statusResponse(res.Tx)
	resp.Message = "Cash payment confirmed"
	return resp, nil
}

// ListForOrder - все попытки оплаты заказа, по времени создания
func (s *PaymentService) ListForOrder(ctx context.Context, db *gorm.DB, orderID string) ([]dto.TransactionDTO, error) {
	db = db.WithContext(ctx)
	if _, err := s.orderRepo.FindByID(db, orderID); err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	txs, err := s.txRepo.ListByOrder(db, orderID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	result := make([]dto.TransactionDTO, 0, len(txs))
	for i := range txs {
		result = append(result, dto.NewTransactionDTO(&txs[i]))
	}
	return result, nil
}

// OpenReceipt - архивная квитанция оплаченного заказа. Чужой заказ выглядит как несуществующий.
func (s *PaymentService) OpenReceipt(ctx context.Context, db *gorm.DB, orderID, userID string, role models.UserRole) (io.ReadCloser, error) {
	db = db.WithContext(ctx)
	order, err := s.orderRepo.FindByID(db, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.InternalError(err)
	}
	if order.UserID != userID && !auth.HasPermission(role, auth.PermOrdersReadAll) {
		return nil, apperrors.ErrOrderNotFound
	}
	if s.archive == nil {
		return nil, apperrors.ErrReceiptNotFound
	}

	txs, err := s.txRepo.ListByOrder(db, orderID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	for i := range txs {
		if !txs[i].IsVerified() {
			continue
		}
		body, err := s.archive.Open(ctx, orderID, txs[i].CorrelationRef)
		if errors.Is(err, storage.ErrNotFound) {
			// квитанция еще пишется или архив был выключен в момент оплаты
			return nil, apperrors.ErrReceiptNotFound
		}
		if err != nil {
			return nil, apperrors.ErrStoreUnavailable.WithError(err)
		}
		return body, nil
	}
	return nil, apperrors.ErrReceiptNotFound
}

// CancelledAttempts - попытки оплаты, отмененные вместе с заказом
type CancelledAttempts struct {
	OrderID string
	Refs    map[models.PaymentMethod][]string
	At      time.Time
}

func (c *CancelledAttempts) Count() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, refs := range c.Refs {
		n += len(refs)
	}
	return n
}

// CancelPendingForOrder отменяет все висящие попытки заказа в транзакции db.
// Подписчики и провайдер узнают об отмене из AfterOrderCancelled, когда транзакция закоммичена.
func (s *PaymentService) CancelPendingForOrder(ctx context.Context, db *gorm.DB, orderID string) (*CancelledAttempts, error) {
	cancelled := &CancelledAttempts{
		OrderID: orderID,
		Refs:    map[models.PaymentMethod][]string{},
		At:      s.now(),
	}
	for _, method := range models.ValidPaymentMethods() {
		refs, err := s.txRepo.CancelPending(db.WithContext(ctx), orderID, method, ReasonOrderCancelled, cancelled.At)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 {
			cancelled.Refs[method] = refs
		}
	}
	return cancelled, nil
}

// AfterOrderCancelled публикует отмену попыток и отменяет их у провайдеров
func (s *PaymentService) AfterOrderCancelled(ctx context.Context, cancelled *CancelledAttempts) {
	if cancelled == nil {
		return
	}
	for method, refs := range cancelled.Refs {
		adapter, adapterErr := s.providers.Get(method)
		for _, ref := range refs {
			s.publish(ref, cancelled.OrderID, models.TransactionStatusCancelled, models.VerificationStatusFailed, ReasonOrderCancelled, cancelled.At)
			if adapterErr == nil {
				s.cancelAtProvider(ctx, adapter, ref)
			}
		}
	}
}

// ============================================================================
// Фоновая сверка
// ============================================================================

// StalePending - pending-транзакции старше sweep.stale_after, для которых есть смысл
// спросить провайдера. Наличные закрывает только администратор.
func (s *PaymentService) StalePending(ctx context.Context, db *gorm.DB) ([]models.PaymentTransaction, error) {
	cutoff := s.now().Add(-s.sweep.StaleAfter)
	return s.txRepo.FindStalePending(db.WithContext(ctx), cutoff,
		[]models.PaymentMethod{models.PaymentMethodCash}, s.sweep.BatchSize)
}

// Reconcile спрашивает провайдера о статусе и применяет терминальный результат
func (s *PaymentService) Reconcile(ctx context.Context, db *gorm.DB, ptx models.PaymentTransaction) (bool, error) {
	ctx = logger.WithCorrelationID(ctx, ptx.CorrelationRef)
	adapter, err := s.providers.Get(ptx.PaymentMethod)
	if err != nil {
		return false, err
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	ev, err := adapter.QueryStatus(qctx, ptx.CorrelationRef)
	cancel()
	if err != nil {
		return false, err
	}
	if !ev.IsTerminal() {
		return false, nil
	}

	res, err := s.applyEvent(ctx, db.WithContext(ctx), *ev, "")
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// ExpireStale переводит в failed попытки, по которым результата нет дольше sweep.expire_after
func (s *PaymentService) ExpireStale(ctx context.Context, db *gorm.DB) (int, error) {
	db = db.WithContext(ctx)
	now := s.now()
	cutoff := now.Add(-s.sweep.ExpireAfter)

	stale, err := s.txRepo.FindStalePending(db, cutoff,
		[]models.PaymentMethod{models.PaymentMethodCash}, s.sweep.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, ptx := range stale {
		ok, err := s.txRepo.TransitionFromPending(db, ptx.CorrelationRef, repositories.TerminalUpdate{
			Status:             models.TransactionStatusFailed,
			VerificationStatus: models.VerificationStatusFailed,
			FailureReason:      ReasonExpired,
			At:                 now,
		})
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
			s.publish(ptx.CorrelationRef, ptx.OrderID, models.TransactionStatusFailed, models.VerificationStatusFailed, ReasonExpired, now)
		}
	}
	return expired, nil
}

// ReplayUnmatched повторно применяет callback'и, пришедшие раньше, чем записалась транзакция
func (s *PaymentService) ReplayUnmatched(ctx context.Context, db *gorm.DB) (int, error) {
	db = db.WithContext(ctx)
	cbs, err := s.callbackRepo.FindUnmatched(db, maxReplayAttempts, s.sweep.BatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, cb := range cbs {
		ev := providers.Event{
			Provider:       cb.Provider,
			CorrelationRef: cb.CorrelationRef,
			Outcome:        cb.Outcome,
			Receipt:        cb.Receipt,
			Reason:         cb.Reason,
			Raw:            json.RawMessage(cb.Payload),
		}
		if cb.Amount.Valid {
			amount := cb.Amount.Decimal
			ev.Amount = &amount
		}

		cctx := logger.WithCorrelationID(ctx, cb.CorrelationRef)
		confirmed := false
		if adapter, err := s.providers.Get(cb.Provider); err == nil {
			ev, confirmed = s.confirmEvent(cctx, adapter, ev)
		}
		if !confirmed {
			if err := s.callbackRepo.IncrementReplay(db, cb.ID); err != nil {
				return applied, err
			}
			continue
		}

		res, err := s.applyEvent(cctx, db, ev, cb.ID)
		if err != nil {
			return applied, err
		}
		if !res.Matched {
			if err := s.callbackRepo.IncrementReplay(db, cb.ID); err != nil {
				return applied, err
			}
			continue
		}
		if res.Applied {
			applied++
		}
	}
	return applied, nil
}

// ============================================================================
// Вспомогательные
// ============================================================================

func (s *PaymentService) findTransaction(ctx context.Context, db *gorm.DB, ref string) (*models.PaymentTransaction, error) {
	ptx, err := s.txRepo.FindByCorrelationRef(db.WithContext(ctx), ref)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		logger.CtxWithError(ctx, "Failed to load payment transaction", err, "correlation_ref", ref)
		return nil, apperrors.ErrStoreUnavailable.WithError(err)
	}
	return ptx, nil
}

func (s *PaymentService) publish(ref, orderID string, status models.TransactionStatus, verification models.VerificationStatus, reason string, at time.Time) {
	s.publisher.Publish(dto.PaymentStatusUpdate{
		TransactionID:      ref,
		OrderID:            orderID,
		Status:             status,
		VerificationStatus: verification,
		Verified:           status == models.TransactionStatusCompleted && verification == models.VerificationStatusVerified,
		Reason:             reason,
		At:                 at,
	})
}

// sendReceipt отправляет квитанцию асинхронно, ошибки только логируются
func (s *PaymentService) sendReceipt(ctx context.Context, db *gorm.DB, ptx *models.PaymentTransaction, paidAt time.Time) {
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, receiptSendTimeout)
		defer cancel()

		sdb := db.WithContext(ctx)
		order, err := s.orderRepo.FindByID(sdb, ptx.OrderID)
		if err != nil {
			logger.CtxWithError(ctx, "Receipt: failed to load order", err, "order_id", ptx.OrderID)
			return
		}
		user, err := s.userRepo.FindByID(sdb, order.UserID)
		if err != nil {
			logger.CtxWithError(ctx, "Receipt: failed to load customer", err, "user_id", order.UserID)
			return
		}

		receipt := email.Receipt{
			To:              user.Email,
			CustomerName:    user.Name,
			OrderID:         order.ID,
			TransactionID:   ptx.CorrelationRef,
			Amount:          ptx.Amount,
			Currency:        ptx.Currency,
			PaymentMethod:   string(ptx.PaymentMethod),
			ProviderReceipt: ptx.ProviderReceipt,
			PaidAt:          paidAt,
		}

		if s.archive != nil {
			url, err := s.archive.Store(ctx, receipt)
			if err != nil {
				logger.CtxWithError(ctx, "Failed to archive payment receipt", err, "order_id", order.ID)
			} else {
				logger.CtxDebug(ctx, "Payment receipt archived", "order_id", order.ID, "url", url)
			}
		}

		if err := s.mailer.SendPaymentReceipt(ctx, receipt); err != nil {
			logger.CtxWithError(ctx, "Failed to send payment receipt", err, "order_id", order.ID)
		}
	}()
}

func statusResponse(ptx *models.PaymentTransaction) *dto.PaymentStatusResponse {
	verified := ptx.IsVerified()
	return &dto.PaymentStatusResponse{
		Success:            true,
		Status:             ptx.Status,
		Verified:           &verified,
		VerificationStatus: ptx.VerificationStatus,
		OrderID:            ptx.OrderID,
	}
}

// jsonOrNull - пустой или битый JSON не пишем в jsonb
func jsonOrNull(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

// jsonOrString сохраняет тело как есть, а не-JSON оборачивает в строку
func jsonOrString(raw []byte) datatypes.JSON {
	if len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
