package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/services"
	"electroshop_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// maxCallbackBody - callback'и провайдеров укладываются в несколько килобайт
const maxCallbackBody = 1 << 20

// callbackProviders - сегмент пути callback'а -> метод оплаты
var callbackProviders = map[string]models.PaymentMethod{
	"mpesa":  models.PaymentMethodMobileMoney,
	"card":   models.PaymentMethodCard,
	"stripe": models.PaymentMethodCard,
}

type PaymentHandler struct {
	*BaseHandler
	paymentService *services.PaymentService
}

func NewPaymentHandler(base *BaseHandler, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    base,
		paymentService: paymentService,
	}
}

// RegisterRoutes - платежные эндпоинты публичные: доступ по токену корреляции
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("/initiate", h.Initiate)
		payments.POST("/callback/:provider", h.Callback)
		payments.GET("/status/:transactionId", h.GetStatus)
		payments.POST("/status", h.PostStatus)
		payments.POST("/cancel", h.Cancel)
	}
}

// Initiate - POST /payments/initiate
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if !h.bindPayment(c, &req) {
		return
	}

	resp, err := h.paymentService.Initiate(c.Request.Context(), h.GetDB(c), &req)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Callback - POST /payments/callback/:provider.
// Провайдер всегда получает 200 и конверт успеха, иначе он будет повторять доставку.
func (h *PaymentHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	provider := strings.ToLower(c.Param("provider"))

	method, ok := callbackProviders[provider]
	if !ok {
		logger.CtxWarn(ctx, "Callback for unknown provider", "provider", provider, "ip", c.ClientIP())
		c.JSON(http.StatusOK, dto.SuccessAck())
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
	if err != nil {
		logger.CtxWithError(ctx, "Failed to read callback body", err, "provider", provider)
		c.JSON(http.StatusOK, dto.SuccessAck())
		return
	}

	// Обработка доводится до конца, даже если провайдер закрыл соединение
	if err := h.paymentService.HandleCallback(context.WithoutCancel(ctx), h.GetDB(c), method, raw, c.Request.Header); err != nil {
		logger.CtxWithError(ctx, "Callback processing failed", err, "provider", provider)
	}
	c.JSON(http.StatusOK, dto.SuccessAck())
}

// GetStatus - GET /payments/status/:transactionId
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("transactionId"))
	if ref == "" {
		h.paymentError(c, apperrors.ValidationError(map[string]string{"transactionId": "This field is required"}))
		return
	}
	h.respondStatus(c, ref)
}

// PostStatus - POST /payments/status {transactionId}
func (h *PaymentHandler) PostStatus(c *gin.Context) {
	var req dto.TransactionRefRequest
	if !h.bindPayment(c, &req) {
		return
	}
	h.respondStatus(c, req.TransactionID)
}

// Cancel - POST /payments/cancel {transactionId}
func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req dto.TransactionRefRequest
	if !h.bindPayment(c, &req) {
		return
	}

	resp, err := h.paymentService.Cancel(c.Request.Context(), h.GetDB(c), req.TransactionID)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) respondStatus(c *gin.Context, ref string) {
	resp, err := h.paymentService.GetStatus(c.Request.Context(), h.GetDB(c), ref)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// Ответы об ошибках в формате платежного API
// ============================================================================

func (h *PaymentHandler) bindPayment(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind JSON body", err, "path", c.Request.URL.Path)
		h.paymentError(c, apperrors.NewBadRequestError("Invalid request body"))
		return false
	}
	if err := h.validator.Validate(obj); err != nil {
		h.paymentError(c, validationAppError(ctx, c.Request.URL.Path, err))
		return false
	}
	return true
}

func (h *PaymentHandler) paymentError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		logger.CtxWithError(c.Request.Context(), "Internal server error", err, "path", c.Request.URL.Path)
		appErr = apperrors.InternalError(err)
	} else if appErr.HTTPCode >= 500 {
		logger.CtxWarn(c.Request.Context(), "Payment request failed", "code", appErr.Code, "error", appErr.Error())
	}

	resp := dto.PaymentFailureResponse{
		Success: false,
		Message: appErr.Message,
		Code:    string(appErr.Code),
	}
	if appErr.HTTPCode < 500 {
		resp.Details = appErr.Details
	}
	c.JSON(appErr.HTTPCode, resp)
}
