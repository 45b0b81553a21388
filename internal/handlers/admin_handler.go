package handlers

import (
	"net/http"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/middleware"
	"electroshop_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler - ручные операции администратора над заказами и оплатами
type AdminHandler struct {
	*BaseHandler
	orderService   services.OrderService
	paymentService *services.PaymentService
}

func NewAdminHandler(base *BaseHandler, orderService services.OrderService, paymentService *services.PaymentService) *AdminHandler {
	return &AdminHandler{
		BaseHandler:    base,
		orderService:   orderService,
		paymentService: paymentService,
	}
}

func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup, authMw gin.HandlerFunc) {
	admin := rg.Group("/admin")
	admin.Use(authMw)
	{
		admin.PATCH("/orders/:id/status", middleware.RequirePermission(auth.PermOrdersOverride), h.UpdateOrderStatus)
		admin.GET("/orders/:id/transactions", middleware.RequirePermission(auth.PermTransactionsRead), h.ListOrderTransactions)
		admin.POST("/payments/:transactionId/confirm", middleware.RequirePermission(auth.PermPaymentsConfirmCOD), h.ConfirmCashPayment)
	}
}

// UpdateOrderStatus - PATCH /admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), h.GetDB(c), c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrderTransactions - GET /admin/orders/:id/transactions
func (h *AdminHandler) ListOrderTransactions(c *gin.Context) {
	txs, err := h.paymentService.ListForOrder(c.Request.Context(), h.GetDB(c), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// ConfirmCashPayment - POST /admin/payments/:transactionId/confirm
func (h *AdminHandler) ConfirmCashPayment(c *gin.Context) {
	adminID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.paymentService.ConfirmCash(c.Request.Context(), h.GetDB(c), c.Param("transactionId"), adminID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
