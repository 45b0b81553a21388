package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"electroshop_backend/internal/config"
	"electroshop_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeReconciler struct {
	mu         sync.Mutex
	stale      []models.PaymentTransaction
	staleErr   error
	failRefs   map[string]bool
	seen       []string
	expired    int
	replayed   int
	expireErr  error
	passes     int
	passSignal chan struct{}
}

func (f *fakeReconciler) StalePending(ctx context.Context, db *gorm.DB) ([]models.PaymentTransaction, error) {
	return f.stale, f.staleErr
}

func (f *fakeReconciler) Reconcile(ctx context.Context, db *gorm.DB, ptx models.PaymentTransaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ptx.CorrelationRef)
	if f.failRefs[ptx.CorrelationRef] {
		return false, errors.New("provider down")
	}
	return true, nil
}

func (f *fakeReconciler) ExpireStale(ctx context.Context, db *gorm.DB) (int, error) {
	return f.expired, f.expireErr
}

func (f *fakeReconciler) ReplayUnmatched(ctx context.Context, db *gorm.DB) (int, error) {
	f.mu.Lock()
	f.passes++
	f.mu.Unlock()
	if f.passSignal != nil {
		select {
		case f.passSignal <- struct{}{}:
		default:
		}
	}
	return f.replayed, nil
}

func staleTxs(refs ...string) []models.PaymentTransaction {
	out := make([]models.PaymentTransaction, 0, len(refs))
	for _, ref := range refs {
		out = append(out, models.PaymentTransaction{CorrelationRef: ref, PaymentMethod: models.PaymentMethodMobileMoney})
	}
	return out
}

func TestPaymentSweeper_RunOnce(t *testing.T) {
	fake := &fakeReconciler{
		stale:    staleTxs("ws_1", "ws_2", "ws_3", "ws_4", "ws_5"),
		failRefs: map[string]bool{"ws_3": true},
		expired:  2,
		replayed: 1,
	}
	sweeper := NewPaymentSweeper(nil, fake, config.SweepConfig{Workers: 2, Interval: time.Minute})

	res, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Polled)
	assert.Equal(t, 4, res.Reconciled)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, 1, res.Replayed)
	assert.ElementsMatch(t, []string{"ws_1", "ws_2", "ws_3", "ws_4", "ws_5"}, fake.seen)
}

func TestPaymentSweeper_RunOnceNothingStale(t *testing.T) {
	fake := &fakeReconciler{}
	sweeper := NewPaymentSweeper(nil, fake, config.SweepConfig{Workers: 0})

	res, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Polled)
	assert.Zero(t, res.Reconciled)
	assert.Equal(t, 1, fake.passes)
}

func TestPaymentSweeper_RunOnceErrors(t *testing.T) {
	t.Run("listing stale fails", func(t *testing.T) {
		fake := &fakeReconciler{staleErr: errors.New("db gone")}
		_, err := NewPaymentSweeper(nil, fake, config.SweepConfig{Workers: 1}).RunOnce(context.Background())
		assert.EqualError(t, err, "db gone")
		assert.Zero(t, fake.passes)
	})

	t.Run("expiry fails", func(t *testing.T) {
		fake := &fakeReconciler{stale: staleTxs("ws_1"), expireErr: errors.New("locked")}
		res, err := NewPaymentSweeper(nil, fake, config.SweepConfig{Workers: 1}).RunOnce(context.Background())
		assert.EqualError(t, err, "locked")
		assert.Equal(t, 1, res.Reconciled)
		assert.Zero(t, fake.passes)
	})
}

func TestPaymentSweeper_StartTicksUntilCancelled(t *testing.T) {
	fake := &fakeReconciler{passSignal: make(chan struct{}, 1)}
	sweeper := NewPaymentSweeper(nil, fake, config.SweepConfig{Workers: 1, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	select {
	case <-fake.passSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run a pass")
	}
	cancel()
}
