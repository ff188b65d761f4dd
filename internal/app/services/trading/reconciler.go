package trading

import (
	"context"
	"sync"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
)

// Reconciler periodically drives stuck mid-state transactions one step
// forward. Every pass is idempotent; a failed retry leaves the row for a
// later tick with per-entity backoff.
type Reconciler struct {
	store      storage.Store
	engine     *Engine
	interval   time.Duration
	stuckAfter time.Duration
	log        *logger.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	nextAttempt map[string]time.Time
	backoff     map[string]time.Duration
}

// NewReconciler creates the reconciler.
func NewReconciler(store storage.Store, engine *Engine, interval, stuckAfter time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		store:       store,
		engine:      engine,
		interval:    interval,
		stuckAfter:  stuckAfter,
		log:         log,
		nextAttempt: make(map[string]time.Time),
		backoff:     make(map[string]time.Duration),
	}
}

// Name implements system.Service.
func (r *Reconciler) Name() string { return "trading-reconciler" }

// Start launches the polling loop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.Tick(loopCtx, time.Now().UTC())
			}
		}
	}()

	r.log.WithField("interval", r.interval.String()).Info("reconciler started")
	return nil
}

// Stop terminates the polling loop and waits for the in-flight pass.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.log.Info("reconciler stopped")
	return nil
}

var stuckStatuses = []trade.Status{
	trade.StatusEscrowCreated,
	trade.StatusPaymentReceived,
	trade.StatusTokensTransferred,
}

// Tick runs one reconciliation pass. Exported so tests can drive passes
// without sleeping.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) {
	stuck, err := r.store.ListStuckTransactions(ctx, stuckStatuses, now.Add(-r.stuckAfter))
	if err != nil {
		r.log.WithError(err).Error("list stuck transactions")
		return
	}

	for _, tx := range stuck {
		if next, ok := r.attemptAt(tx.ID); ok && now.Before(next) {
			continue
		}
		if err := r.resume(ctx, tx); err != nil {
			r.recordFailure(tx.ID, now)
			r.log.WithError(err).WithFields(map[string]any{
				"txId":   tx.ID,
				"status": string(tx.Status),
			}).Warn("reconcile attempt failed")
			continue
		}
		r.clearBackoff(tx.ID)
	}
}

// resume advances one stuck transaction a single step.
func (r *Reconciler) resume(ctx context.Context, tx trade.Transaction) error {
	switch tx.Status {
	case trade.StatusEscrowCreated:
		advanced, err := r.engine.ReverifyPayment(ctx, tx.ID)
		if err != nil {
			return err
		}
		if !advanced {
			// Not confirmable yet; no error, no backoff reset needed either
			// way since nothing changed.
			return nil
		}
		return nil
	case trade.StatusPaymentReceived:
		_, err := r.engine.TransferTokens(ctx, tx.ID)
		return err
	case trade.StatusTokensTransferred:
		_, err := r.engine.Complete(ctx, tx.ID)
		return err
	}
	return nil
}

func (r *Reconciler) attemptAt(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.nextAttempt[id]
	return next, ok
}

func (r *Reconciler) recordFailure(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	backoff := r.backoff[id]
	if backoff == 0 {
		backoff = r.interval
	} else {
		backoff *= 2
		if backoff > time.Hour {
			backoff = time.Hour
		}
	}
	r.backoff[id] = backoff
	r.nextAttempt[id] = now.Add(backoff)
}

func (r *Reconciler) clearBackoff(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backoff, id)
	delete(r.nextAttempt, id)
}

// ReverifyPayment asks the payment collaborator to confirm an inbound payment
// by escrow address for a transaction still in ESCROW_CREATED. When the
// collaborator confirms, the transaction advances to PAYMENT_RECEIVED;
// otherwise it is left untouched for the next pass.
func (e *Engine) ReverifyPayment(ctx context.Context, txID string) (bool, error) {
	tx, err := e.getTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx.Status != trade.StatusEscrowCreated {
		return false, nil
	}

	start := time.Now()
	verified, err := e.payment.VerifyInbound(ctx, "", tx.Amount, tx.EscrowAddress)
	metrics.RecordCollaboratorCall("payment", time.Since(start), err)
	if err != nil {
		return false, errors.CollaboratorFailure("payment", err)
	}
	if !verified {
		return false, nil
	}

	tx.Status = trade.StatusPaymentReceived
	if _, err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return false, errors.Internal("update transaction", err)
	}
	metrics.RecordTransactionTransition(string(trade.StatusPaymentReceived))
	return true, nil
}
