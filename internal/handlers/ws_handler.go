package handlers

import (
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/services"
	"electroshop_backend/ws"

	"github.com/gin-gonic/gin"
)

// WSHandler подписывает клиента на смены статуса одной транзакции
type WSHandler struct {
	*BaseHandler
	Manager        *ws.WebSocketManager
	paymentService *services.PaymentService
}

func NewWSHandler(base *BaseHandler, manager *ws.WebSocketManager, paymentService *services.PaymentService) *WSHandler {
	return &WSHandler{
		BaseHandler:    base,
		Manager:        manager,
		paymentService: paymentService,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/payments/:transactionId", h.PaymentStatus)
	logger.Info("WebSocket route /ws/payments/:transactionId registered")
}

// PaymentStatus - GET /ws/payments/:transactionId.
// Неизвестный токен отклоняется до upgrade обычным 404.
// Снимок, который уходит клиенту, читается заново уже после подписки.
func (h *WSHandler) PaymentStatus(c *gin.Context) {
	ctx := c.Request.Context()
	ref := c.Param("transactionId")
	db := h.GetDB(c)

	if _, err := h.paymentService.GetStatus(ctx, db, ref); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	err := h.Manager.ServeWS(c.Writer, c.Request, ref, func() (any, error) {
		return h.paymentService.GetStatus(ctx, db, ref)
	})
	if err != nil {
		// ответ клиенту уже отправлен: upgrader или кадр закрытия
		logger.CtxWarn(ctx, "WebSocket subscription failed", "correlation_id", ref, "error", err.Error())
	}
}
