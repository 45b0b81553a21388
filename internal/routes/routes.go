package routes

import (
	"net/http"

	"electroshop_backend/internal/handlers"
	"electroshop_backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	authMw gin.HandlerFunc,
) {
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := ginRouter.Group("/api/v1")
	{
		appHandlers.AuthHandler.RegisterRoutes(api, authMw)
		appHandlers.OrderHandler.RegisterRoutes(api, authMw)
		appHandlers.PaymentHandler.RegisterRoutes(api)
		appHandlers.AdminHandler.RegisterRoutes(api, authMw)
	}

	// подписка по токену корреляции, без JWT
	appHandlers.WSHandler.RegisterRoutes(ginRouter)
	logger.Info("Routes registered", "count", len(ginRouter.Routes()))
}
