package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	AuthHandler    *AuthHandler
	OrderHandler   *OrderHandler
	PaymentHandler *PaymentHandler
	AdminHandler   *AdminHandler
	WSHandler      *WSHandler
}
