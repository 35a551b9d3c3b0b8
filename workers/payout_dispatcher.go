package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/models"
	"match-escrow-system/services"
)

// Ledger is the part of the ledger service the workers talk to.
type Ledger interface {
	SubmitTransfer(ctx context.Context, tr services.TransferRequest) (*services.TransferResponse, error)
	TransferUpdates(ctx context.Context, since time.Time) ([]services.TransferUpdate, error)
}

// Signal coalesces wake-ups for a worker loop. It satisfies
// services.Notifier.
type Signal chan struct{}

func NewSignal() Signal {
	return make(Signal, 1)
}

func (s Signal) Notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

const (
	defaultDispatchBatch = 100
	defaultMaxAttempts   = 10
)

// PayoutDispatcher sends pending payouts to the ledger. It runs on a ticker
// and whenever the engine signals that new payouts were committed.
type PayoutDispatcher struct {
	payouts     *services.PayoutService
	ledger      Ledger
	wake        Signal
	interval    time.Duration
	Batch       int
	MaxAttempts int
}

func NewPayoutDispatcher(payouts *services.PayoutService, ledger Ledger, wake Signal, interval time.Duration) *PayoutDispatcher {
	return &PayoutDispatcher{
		payouts:     payouts,
		ledger:      ledger,
		wake:        wake,
		interval:    interval,
		Batch:       defaultDispatchBatch,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Run dispatches until ctx is cancelled.
func (d *PayoutDispatcher) Run(ctx context.Context) error {
	log.Printf("🔁 Starting payout dispatcher (every %s)…", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchPending(ctx); err != nil {
			log.Printf("[PayoutDispatcher] ❌ %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("⏹️ Payout dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DispatchPending submits one batch of pending payouts and returns how many
// reached a verdict from the ledger.
func (d *PayoutDispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.payouts.Pending(ctx, d.Batch)
	if err != nil {
		return 0, fmt.Errorf("list pending payouts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	log.Printf("[PayoutDispatcher] 📤 submitting %d payout(s)", len(pending))

	sent := 0
	var errs []error
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		ok, err := d.dispatch(ctx, &pending[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("payout %s: %w", pending[i].ID, err))
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func (d *PayoutDispatcher) dispatch(ctx context.Context, p *models.Payout) (bool, error) {
	resp, err := d.ledger.SubmitTransfer(ctx, services.TransferRequest{
		Reference: p.ID,
		Asset:     p.Asset,
		Recipient: p.AccountID,
		Amount:    p.Amount,
		Memo:      string(p.Kind),
	})
	switch {
	case errors.Is(err, services.ErrTransferRejected):
		return true, d.payouts.Fail(ctx, p.ID, err.Error())
	case err != nil:
		if ctx.Err() != nil {
			return false, nil
		}
		attempts, rerr := d.payouts.RecordAttempt(ctx, p.ID, err)
		if rerr != nil {
			return false, rerr
		}
		if attempts >= d.MaxAttempts {
			return true, d.payouts.Fail(ctx, p.ID, fmt.Sprintf("gave up after %d attempts: %v", attempts, err))
		}
		log.Printf("[PayoutDispatcher] ⚠️ payout %s attempt %d: %v", p.ID, attempts, err)
		return false, nil
	}

	switch resp.Status {
	case services.TransferFailed:
		return true, d.payouts.Fail(ctx, p.ID, resp.Reason)
	case services.TransferConfirmed:
		if err := d.payouts.MarkSubmitted(ctx, p.ID, resp.TransferID); err != nil {
			return true, err
		}
		return true, d.payouts.Confirm(ctx, p.ID)
	default:
		return true, d.payouts.MarkSubmitted(ctx, p.ID, resp.TransferID)
	}
}
