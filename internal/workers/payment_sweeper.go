package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"electroshop_backend/internal/config"
	"electroshop_backend/internal/logger"
	"electroshop_backend/internal/models"

	"gorm.io/gorm"
)

// reconciler - операции PaymentService, которые нужны сверке
type reconciler interface {
	StalePending(ctx context.Context, db *gorm.DB) ([]models.PaymentTransaction, error)
	Reconcile(ctx context.Context, db *gorm.DB, ptx models.PaymentTransaction) (bool, error)
	ExpireStale(ctx context.Context, db *gorm.DB) (int, error)
	ReplayUnmatched(ctx context.Context, db *gorm.DB) (int, error)
}

// SweepResult - итог одного прохода
type SweepResult struct {
	Polled     int
	Reconciled int
	Expired    int
	Replayed   int
}

// PaymentSweeper периодически доводит зависшие pending-транзакции до терминального статуса:
// опрашивает провайдера, истекает слишком старые и переигрывает ранние callback'и
type PaymentSweeper struct {
	db  *gorm.DB
	svc reconciler
	cfg config.SweepConfig
}

func NewPaymentSweeper(db *gorm.DB, svc reconciler, cfg config.SweepConfig) *PaymentSweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &PaymentSweeper{db: db, svc: svc, cfg: cfg}
}

// Start запускает dispatcher до отмены ctx
func (w *PaymentSweeper) Start(ctx context.Context) {
	go w.dispatcherLoop(ctx)
}

func (w *PaymentSweeper) dispatcherLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	logger.Info("Payment sweeper started", "interval", w.cfg.Interval, "workers", w.cfg.Workers)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Payment sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Payment sweep failed")
			}
		}
	}
}

// RunOnce - один проход: сверка с провайдером пулом воркеров, затем истечение и повтор callback'ов
func (w *PaymentSweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}

	stale, err := w.svc.StalePending(ctx, w.db)
	logger.WorkerLog("payment_sweeper", "find_stale", len(stale), err)
	if err != nil {
		return res, err
	}
	res.Polled = len(stale)
	res.Reconciled = w.reconcile(ctx, stale)

	res.Expired, err = w.svc.ExpireStale(ctx, w.db)
	logger.WorkerLog("payment_sweeper", "expire", res.Expired, err)
	if err != nil {
		return res, err
	}

	res.Replayed, err = w.svc.ReplayUnmatched(ctx, w.db)
	logger.WorkerLog("payment_sweeper", "replay_callbacks", res.Replayed, err)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (w *PaymentSweeper) reconcile(ctx context.Context, stale []models.PaymentTransaction) int {
	if len(stale) == 0 {
		return 0
	}

	jobs := make(chan models.PaymentTransaction, w.cfg.Workers*3)
	var (
		wg      sync.WaitGroup
		applied atomic.Int64
	)
	for i := 1; i <= w.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.workerLoop(ctx, id, jobs, &applied)
		}(i)
	}

	// в отличие от тикера здесь не пропускаем: проход ограничен batch_size
enqueue:
	for _, ptx := range stale {
		select {
		case jobs <- ptx:
		case <-ctx.Done():
			break enqueue
		}
	}
	close(jobs)
	wg.Wait()

	return int(applied.Load())
}

func (w *PaymentSweeper) workerLoop(ctx context.Context, id int, jobs <-chan models.PaymentTransaction, applied *atomic.Int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ptx, ok := <-jobs:
			if !ok {
				return
			}
			ok, err := w.svc.Reconcile(ctx, w.db, ptx)
			if err != nil {
				logger.Warn("Reconcile failed",
					"worker", id,
					"correlation_id", ptx.CorrelationRef,
					"method", ptx.PaymentMethod,
					"error", err.Error(),
				)
				continue
			}
			if ok {
				applied.Add(1)
			}
		}
	}
}
