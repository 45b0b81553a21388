package apperrors

import (
	"net/http"
)

/*
Предопределенные доменные ошибки.
Изменять их нельзя: WithDetails и WithError возвращают копию.
*/

// --- Orders ---

var ErrOrderNotFound = New(
	CodeNotFound,
	"order",
	"Order not found",
	http.StatusNotFound, // 404
)

var ErrOrderAlreadyPaid = New(
	CodeConflict,
	"order",
	"Order is already paid",
	http.StatusConflict, // 409
)

// ErrInvalidOrderTransition - админ пытается перевести заказ в недопустимый статус
var ErrInvalidOrderTransition = New(
	CodeInvalidStatus,
	"order",
	"Order status transition is not allowed",
	http.StatusConflict, // 409
)

var ErrOrderNotPayable = New(
	CodeInvalidStatus,
	"order",
	"Order cannot be paid in its current status",
	http.StatusConflict, // 409
)

// --- Payments ---

var ErrTransactionNotFound = New(
	CodeNotFound,
	"payment",
	"Transaction not found",
	http.StatusNotFound, // 404
)

var ErrReceiptNotFound = New(
	CodeNotFound,
	"payment",
	"Receipt not found",
	http.StatusNotFound, // 404
)

// ErrTransactionNotPending - транзакция уже в терминальном статусе
var ErrTransactionNotPending = New(
	CodeInvalidStatus,
	"payment",
	"Transaction is no longer pending",
	http.StatusConflict, // 409
)

var ErrPaymentInProgress = New(
	CodeConflict,
	"payment",
	"Another payment attempt for this order is in progress",
	http.StatusConflict, // 409
)

var ErrUnsupportedPaymentMethod = New(
	CodeValidationFailed,
	"payment",
	"Unsupported payment method",
	http.StatusBadRequest, // 400
)

// ErrAmountNotOrderTotal - оплата частями не поддерживается: попытка закрывает заказ целиком
var ErrAmountNotOrderTotal = New(
	CodeValidationFailed,
	"payment",
	"Amount must equal the order total",
	http.StatusBadRequest, // 400
)

// ErrProviderUnavailable - провайдер не ответил, не авторизовал нас или вернул 5xx
var ErrProviderUnavailable = New(
	CodeProviderUnavailable,
	"payment",
	"Payment provider is unavailable, please try again",
	http.StatusServiceUnavailable, // 503
)

// ErrStoreUnavailable - не удалось сохранить попытку оплаты.
// Для клиента это такой же временный сбой, как и недоступность провайдера.
var ErrStoreUnavailable = New(
	CodeProviderUnavailable,
	"payment",
	"Payment could not be recorded, please try again",
	http.StatusServiceUnavailable, // 503
)

var ErrProviderReportedFailure = New(
	CodeProviderReportedFailure,
	"payment",
	"Payment was declined by the provider",
	http.StatusPaymentRequired, // 402
)

// --- Auth ---

var ErrInvalidCredentials = New(
	CodeInvalidCredentials,
	"auth",
	"Invalid email or password",
	http.StatusUnauthorized, // 401
)

var ErrEmailAlreadyExists = New(
	CodeAlreadyExists,
	"auth",
	"Email is already registered",
	http.StatusConflict, // 409
)

var ErrTooManyLoginAttempts = New(
	CodeTooManyRequests,
	"auth",
	"Too many failed login attempts, try again later",
	http.StatusTooManyRequests, // 429
)

var ErrInvalidToken = New(
	CodeInvalidToken,
	"auth",
	"Invalid or expired token",
	http.StatusUnauthorized, // 401
)
