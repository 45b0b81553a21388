package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	log  *slog.Logger
	once sync.Once
)

// Init инициализирует логгер процесса
// env: "development", "test" или "production"
func Init(env string) {
	log = New(env, os.Stdout)
	slog.SetDefault(log) // default для всего приложения, в т.ч. apperrors
}

// New собирает логгер без установки его глобальным (для тестов и CLI)
func New(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: env != "test",
	}

	var handler slog.Handler
	switch env {
	case "development":
		// Читаемый текстовый формат
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	case "test":
		opts.Level = slog.LevelWarn
		handler = slog.NewTextHandler(w, opts)
	default:
		// Production: JSON для парсинга
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// GetLogger возвращает логгер процесса
func GetLogger() *slog.Logger {
	once.Do(func() {
		if log == nil {
			// Fallback если Init не вызван
			Init("development")
		}
	})
	return log
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// Fatal логирует ошибку и завершает программу
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// With - логгер с дополнительными полями, например logger.With("provider", "mpesa")
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

func WithError(err error) *slog.Logger {
	return GetLogger().With("error", errString(err))
}

// ProviderLog - исходящий вызов платежного провайдера. Успешные вызовы только в debug.
func ProviderLog(provider, operation string, duration time.Duration, err error) {
	l := GetLogger().With("provider", provider, "operation", operation, "duration_ms", duration.Milliseconds())
	if err != nil {
		l.Warn("provider call failed", "error", err.Error())
		return
	}
	l.Debug("provider call")
}

// WorkerLog - шаг фонового воркера; пустые проходы только в debug
func WorkerLog(worker, operation string, affected int, err error) {
	l := GetLogger().With("worker", worker, "operation", operation, "affected", affected)
	switch {
	case err != nil:
		l.Error("worker operation failed", "error", err.Error())
	case affected > 0:
		l.Info("worker operation completed")
	default:
		l.Debug("worker operation completed")
	}
}
