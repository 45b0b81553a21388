package validator

import (
	"log"
	"reflect"
	"regexp"

	"electroshop_backend/internal/models"
	"electroshop_backend/internal/utils"

	"github.com/go-playground/validator/v10"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// registerCustomRules регистрирует кастомные функции валидации
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// Без правила приложение запускать нельзя
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// 'is-payment-method': mobile_money | cash | card
	mustRegister("is-payment-method", validatePaymentMethod)

	// 'is-payer-contact': формат зависит от соседнего поля PaymentMethod
	mustRegister("is-payer-contact", validatePayerContact)

	mustRegister("is-order-status", validateOrderStatus)
	mustRegister("is-currency", validateCurrency)
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // 'required' обрабатывает пустые
	}
	for _, m := range models.ValidPaymentMethods() {
		if models.PaymentMethod(value) == m {
			return true
		}
	}
	return false
}

// validatePayerContact: телефон Safaricom для мобильных денег, email для карты,
// телефон или email для оплаты при доставке
func validatePayerContact(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	method := models.PaymentMethodMobileMoney
	if parent := fl.Parent(); parent.Kind() == reflect.Struct {
		if f := parent.FieldByName("PaymentMethod"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
			method = models.PaymentMethod(f.String())
		}
	}

	switch method {
	case models.PaymentMethodMobileMoney:
		_, ok := utils.NormalizeMSISDN(value)
		return ok
	case models.PaymentMethodCard:
		return utils.IsEmail(value)
	case models.PaymentMethodCash:
		return utils.IsPhone(value) || utils.IsEmail(value)
	default:
		// неизвестный метод отловит is-payment-method
		return true
	}
}

func validateOrderStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	switch models.OrderStatus(value) {
	case models.OrderStatusPending, models.OrderStatusProcessing, models.OrderStatusShipped,
		models.OrderStatusCompleted, models.OrderStatusCancelled:
		return true
	default:
		return false
	}
}

func validateCurrency(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return currencyCode.MatchString(value)
}
