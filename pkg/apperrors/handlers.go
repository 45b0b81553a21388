package apperrors

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Пауза, которую советуем клиенту после временного сбоя провайдера
const temporaryRetryAfterSeconds = 5

// ErrorResponse - стандартный ответ об ошибке
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// GinErrorHandler отдает AppError клиенту
type GinErrorHandler struct {
	Debug bool
}

// Normalize приводит любую ошибку к *AppError.
// Неизвестные ошибки становятся InternalError без деталей вне Debug.
func (h *GinErrorHandler) Normalize(err error) *AppError {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = InternalError(err)
		if !h.Debug {
			appErr.Details = nil
		}
	}
	return appErr
}

func (h *GinErrorHandler) HandleGinError(c *gin.Context, err error) {
	appErr := h.Normalize(err)

	if appErr.HTTPCode >= 500 {
		slog.ErrorContext(c.Request.Context(), "server error",
			"code", appErr.Code,
			"domain", appErr.Domain,
			"error", appErr.Error(),
		)
	}

	if seconds := retryAfter(appErr); seconds != "" {
		c.Header("Retry-After", seconds)
	}
	c.JSON(appErr.HTTPCode, ErrorResponse{Error: appErr})
}

// HandleError - короткая форма для хендлеров
func HandleError(c *gin.Context, err error) {
	handler := &GinErrorHandler{Debug: false}
	handler.HandleGinError(c, err)
}

// AsAppError - пытается преобразовать error в *AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// retryAfter: лимитер логинов кладет retry_after в детали, временным сбоям - фиксированная пауза
func retryAfter(e *AppError) string {
	if details, ok := e.Details.(map[string]string); ok && details["retry_after"] != "" {
		return details["retry_after"]
	}
	if e.Temporary() {
		return strconv.Itoa(temporaryRetryAfterSeconds)
	}
	return ""
}
