package handlers

import (
	"context"
	"fmt"
	"strconv"

	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/middleware"
	"electroshop_backend/internal/models"
	"electroshop_backend/internal/validator"
	"electroshop_backend/pkg/apperrors"
	"electroshop_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// BaseHandler - общее для всех хендлеров: БД из контекста, разбор тела, ответы об ошибках
type BaseHandler struct {
	validator *validator.Validator
}

func NewBaseHandler(v *validator.Validator) *BaseHandler {
	return &BaseHandler{validator: v}
}

// GetDB - *gorm.DB, который положил DBMiddleware.
// Без него роутер собран неверно, поэтому паника.
func (h *BaseHandler) GetDB(c *gin.Context) *gorm.DB {
	val, ok := c.Get(string(contextkeys.DBContextKey))
	if !ok {
		logger.CtxError(c.Request.Context(), "db is missing in gin context")
		panic("handlers: DBMiddleware is not installed")
	}
	db, ok := val.(*gorm.DB)
	if !ok {
		panic(fmt.Sprintf("handlers: db in context has type %T", val))
	}
	return db
}

// BindAndValidate_JSON разбирает JSON и прогоняет валидатор.
// false - ответ об ошибке уже отправлен.
func (h *BaseHandler) BindAndValidate_JSON(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind JSON body", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid request body: "+err.Error()))
		return false
	}
	if err := h.validator.Validate(obj); err != nil {
		apperrors.HandleError(c, validationAppError(ctx, c.Request.URL.Path, err))
		return false
	}
	return true
}

// validationAppError переводит ошибку валидатора в AppError
func validationAppError(ctx context.Context, path string, err error) *apperrors.AppError {
	if vErr, ok := err.(*validator.ValidationError); ok {
		logger.CtxWarn(ctx, "Validation failed", "errors", vErr.Errors, "path", path)
		return apperrors.ValidationError(vErr.Errors)
	}
	logger.CtxWithError(ctx, "Internal validator error", err, "path", path)
	return apperrors.InternalError(err)
}

// HandleServiceError: AppError уходит клиенту как есть, остальное - 500
func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		logger.CtxWithError(ctx, "Internal server error", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.InternalError(err))
		return
	}
	if appErr.HTTPCode < 500 {
		logger.CtxWarn(ctx, "Service error", "code", appErr.Code, "error", appErr.Message, "details", appErr.Details, "path", c.Request.URL.Path)
	}
	apperrors.HandleError(c, appErr)
}

// GetAndAuthorizeUserID - id пользователя из JWT, иначе 401
func (h *BaseHandler) GetAndAuthorizeUserID(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		logger.CtxWarn(c.Request.Context(), "Unauthorized access: no user in context", "path", c.Request.URL.Path, "ip", c.ClientIP())
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return "", false
	}
	return userID, true
}

// GetUserRole - роль из JWT (пустая, если middleware не выполнялся)
func (h *BaseHandler) GetUserRole(c *gin.Context) models.UserRole {
	return middleware.GetUserRole(c)
}

func ParseQueryInt(c *gin.Context, key string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// ParsePagination - page и page_size из query, page_size не больше maxPageSize
func ParsePagination(c *gin.Context) (page int, pageSize int) {
	page = ParseQueryInt(c, "page", defaultPage)
	if page <= 0 {
		page = defaultPage
	}
	pageSize = ParseQueryInt(c, "page_size", defaultPageSize)
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}
