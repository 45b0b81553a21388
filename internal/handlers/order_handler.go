package handlers

import (
	"net/http"

	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/middleware"
	"electroshop_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	*BaseHandler
	orderService   services.OrderService
	paymentService *services.PaymentService
}

func NewOrderHandler(base *BaseHandler, orderService services.OrderService, paymentService *services.PaymentService) *OrderHandler {
	return &OrderHandler{
		BaseHandler:    base,
		orderService:   orderService,
		paymentService: paymentService,
	}
}

func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup, authMw gin.HandlerFunc) {
	orders := rg.Group("/orders")
	orders.Use(authMw)
	{
		orders.POST("", middleware.RequirePermission(auth.PermOrdersWriteOwn), h.CreateOrder)
		orders.GET("", middleware.RequirePermission(auth.PermOrdersReadOwn), h.ListMyOrders)
		orders.GET("/:id", middleware.RequirePermission(auth.PermOrdersReadOwn), h.GetOrder)
		orders.GET("/:id/receipt", middleware.RequirePermission(auth.PermOrdersReadOwn), h.GetReceipt)
	}
}

// CreateOrder - POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ListMyOrders - GET /orders?page=&page_size=
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	page, pageSize := ParsePagination(c)

	resp, err := h.orderService.ListMine(c.Request.Context(), h.GetDB(c), userID, page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetOrder - GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), h.GetDB(c), c.Param("id"), userID, h.GetUserRole(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetReceipt - GET /orders/:id/receipt, html квитанция из архива
func (h *OrderHandler) GetReceipt(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	body, err := h.paymentService.OpenReceipt(c.Request.Context(), h.GetDB(c), c.Param("id"), userID, h.GetUserRole(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	defer body.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, "text/html; charset=utf-8", body, nil)
}
