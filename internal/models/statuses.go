package models

type UserRole string
type OrderStatus string
type PaymentStatus string
type TransactionStatus string
type VerificationStatus string
type PaymentMethod string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"

	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"

	// Статус оплаты заказа
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"

	// Статус отдельной попытки оплаты
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusFailed    TransactionStatus = "failed"

	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusFailed   VerificationStatus = "failed"

	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodCard        PaymentMethod = "card"
)

// IsTerminal - из терминального статуса переходов нет
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusCancelled || s == TransactionStatusFailed
}

// IsValidTransactionTransition проверяет переход статуса попытки оплаты
func IsValidTransactionTransition(from, to TransactionStatus) bool {
	validTransitions := map[TransactionStatus][]TransactionStatus{
		TransactionStatusPending: {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
		// Из терминальных статусов переходов нет
		TransactionStatusCompleted: {},
		TransactionStatusFailed:    {},
		TransactionStatusCancelled: {},
	}
	return contains(validTransitions[from], to)
}

// IsValidOrderTransition проверяет переход жизненного цикла заказа
func IsValidOrderTransition(from, to OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusCompleted},
		OrderStatusCompleted:  {},
		OrderStatusCancelled:  {},
	}
	return contains(validTransitions[from], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ValidPaymentMethods - методы, которые принимает инициатор
func ValidPaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMethodMobileMoney, PaymentMethodCash, PaymentMethodCard}
}
