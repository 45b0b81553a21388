package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"electroshop_backend/database"
	"electroshop_backend/internal/auth"
	"electroshop_backend/internal/config"
	"electroshop_backend/internal/email"
	"electroshop_backend/internal/handlers"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/middleware"
	"electroshop_backend/internal/providers"
	"electroshop_backend/internal/repositories"
	"electroshop_backend/internal/routes"
	"electroshop_backend/internal/services"
	"electroshop_backend/internal/storage"
	"electroshop_backend/internal/validator"
	"electroshop_backend/internal/workers"
	"electroshop_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps - внешние зависимости, которые можно подменить в тестах
type Deps struct {
	// HTTPClient для запросов к провайдерам; по умолчанию с таймаутом payments.provider_timeout
	HTTPClient *http.Client
	Mailer     email.Sender
	// Storage - архив квитанций; по умолчанию из конфига storage
	Storage storage.Storage
}

// App - собранное приложение
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Router   *gin.Engine
	Services *services.ServiceContainer
	WS       *ws.WebSocketManager
	Sweeper  *workers.PaymentSweeper
}

// Run поднимает сервер и блокируется до отмены ctx
func Run(ctx context.Context, cfg *config.Config) error {
	logger.Info("Connecting to database...")
	gormDB, err := database.Connect(cfg.Database.DSN)
	if err != nil {
		return err
	}
	logger.Info("Database connected")

	if err := database.Migrate(gormDB); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	application, err := Build(cfg, gormDB, Deps{})
	if err != nil {
		return err
	}

	if err := application.Services.AuthService.SeedAdmin(ctx, gormDB, cfg.Auth.FirstAdminEmail, cfg.Auth.FirstAdminPassword); err != nil {
		// без администратора нечем подтверждать наличные
		return fmt.Errorf("failed to seed first admin user: %w", err)
	}

	go application.WS.Run(ctx)
	if cfg.Sweep.Enabled {
		application.Sweeper.Start(ctx)
	} else {
		logger.Warn("Payment sweeper is disabled")
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", address, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server startup error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// Build собирает зависимости и роутер, ничего не запуская
func Build(cfg *config.Config, gormDB *gorm.DB, deps Deps) (*App, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.Payments.ProviderTimeout}
	}
	if deps.Mailer == nil {
		deps.Mailer = email.NewSender(email.ConfigFromApp(cfg))
	}
	if deps.Storage == nil {
		store, err := storage.NewStorage(storage.Config{
			Type:      cfg.Storage.Type,
			BasePath:  cfg.Storage.BasePath,
			BaseURL:   cfg.Storage.BaseURL,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Endpoint:  cfg.Storage.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if store == nil {
			logger.Warn("Receipt storage is not configured, receipts are not archived")
		} else {
			logger.Info("Receipt storage initialized", "type", cfg.Storage.Type)
		}
		deps.Storage = store
	}

	wsManager := ws.NewWebSocketManager()
	tokens := auth.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.TTL)*time.Minute)

	serviceContainer := initializeServices(cfg, deps, wsManager, tokens)
	appHandlers := initializeHandlers(serviceContainer, wsManager)

	ginRouter := initializeGinRouter(cfg, gormDB)
	routes.RegisterRoutes(ginRouter, appHandlers, middleware.AuthMiddleware(tokens))

	return &App{
		Config:   cfg,
		DB:       gormDB,
		Router:   ginRouter,
		Services: serviceContainer,
		WS:       wsManager,
		Sweeper:  workers.NewPaymentSweeper(gormDB, serviceContainer.PaymentService, cfg.Sweep),
	}, nil
}

func initializeServices(cfg *config.Config, deps Deps, publisher services.StatusPublisher, tokens *auth.TokenManager) *services.ServiceContainer {
	allowDemo := !cfg.Payments.DisableDemo
	if allowDemo {
		logger.Warn("Demo payment tokens are enabled for providers without credentials")
	}

	registry := providers.NewRegistry(
		providers.NewMpesaAdapter(cfg.Payments.Mpesa, allowDemo, deps.HTTPClient),
		providers.NewCardAdapter(cfg.Payments.Stripe, allowDemo, deps.HTTPClient),
		providers.NewCashAdapter(),
	)

	// --- Инициализация репозиториев ---
	userRepo := repositories.NewUserRepository()
	orderRepo := repositories.NewOrderRepository()
	txRepo := repositories.NewTransactionRepository()
	callbackRepo := repositories.NewCallbackRepository()

	// --- Инициализация сервисов ---
	paymentService := services.NewPaymentService(
		orderRepo, txRepo, callbackRepo, userRepo,
		registry, cfg.Payments, cfg.Sweep,
		publisher, deps.Mailer,
		services.NewReceiptArchive(deps.Storage),
	)
	orderService := services.NewOrderService(orderRepo, paymentService, cfg.Payments.Currency)
	authService := services.NewAuthService(userRepo, tokens, services.LoginLimit{
		MaxAttempts: cfg.Auth.LoginMaxAttempts,
		Window:      cfg.Auth.LoginWindow,
	})

	return &services.ServiceContainer{
		AuthService:    authService,
		OrderService:   orderService,
		PaymentService: paymentService,
	}
}

func initializeHandlers(services *services.ServiceContainer, wsManager *ws.WebSocketManager) *handlers.AppHandlers {
	baseHandler := handlers.NewBaseHandler(validator.New())

	return &handlers.AppHandlers{
		AuthHandler:    handlers.NewAuthHandler(baseHandler, services.AuthService),
		OrderHandler:   handlers.NewOrderHandler(baseHandler, services.OrderService, services.PaymentService),
		PaymentHandler: handlers.NewPaymentHandler(baseHandler, services.PaymentService),
		AdminHandler:   handlers.NewAdminHandler(baseHandler, services.OrderService, services.PaymentService),
		WSHandler:      handlers.NewWSHandler(baseHandler, wsManager, services.PaymentService),
	}
}

func initializeGinRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(middleware.DBMiddleware(db))
	return router
}
