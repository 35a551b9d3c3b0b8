// workers/transfer_sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"match-escrow-system/repository"
	"match-escrow-system/services"
	"match-escrow-system/utils"
)

// TransferSyncWorker polls the ledger for transfers that reached a final
// status and settles the matching payouts.
type TransferSyncWorker struct {
	payouts  *services.PayoutService
	ledger   Ledger
	clock    utils.Clock
	interval time.Duration
	since    time.Time
}

func NewTransferSyncWorker(payouts *services.PayoutService, ledger Ledger, clock utils.Clock, interval time.Duration) *TransferSyncWorker {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &TransferSyncWorker{
		payouts:  payouts,
		ledger:   ledger,
		clock:    clock,
		interval: interval,
		// Look back a day on start so results missed while down are applied.
		since: clock.Now().UTC().Add(-24 * time.Hour),
	}
}

func (w *TransferSyncWorker) Run(ctx context.Context) error {
	log.Printf("🔁 Starting transfer sync worker (every %s)…", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Transfer sync worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("[SYNC] ❌ Transfer sync failed: %v", err)
			}
		}
	}
}

// SyncOnce applies every update since the last successful poll and returns
// how many payouts it settled. The window only advances when every update
// was applied, so a failed batch is retried on the next tick.
func (w *TransferSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	pollTime := w.clock.Now().UTC()
	log.Printf("[SYNC] 📡 Fetching transfer changes since=%s", w.since.Format(time.RFC3339))

	updates, err := w.ledger.TransferUpdates(ctx, w.since)
	if err != nil {
		return 0, fmt.Errorf("fetch transfer updates: %w", err)
	}
	if len(updates) == 0 {
		w.since = pollTime
		return 0, nil
	}

	settled := 0
	var errs []error
	for _, u := range updates {
		if u.Reference == "" {
			continue
		}
		var err error
		switch u.Status {
		case services.TransferConfirmed:
			err = w.payouts.Confirm(ctx, u.Reference)
		case services.TransferFailed:
			reason := u.Reason
			if reason == "" {
				reason = "ledger reported failure"
			}
			err = w.payouts.Fail(ctx, u.Reference, reason)
		default:
			continue
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.Printf("[SYNC] ⚠️ transfer %s references unknown payout %s", u.TransferID, u.Reference)
		case errors.Is(err, services.ErrPayoutSettled):
			log.Printf("[SYNC] ⚠️ payout %s already settled, ignoring %s", u.Reference, u.Status)
		case err != nil:
			errs = append(errs, fmt.Errorf("apply %s to payout %s: %w", u.Status, u.Reference, err))
		default:
			settled++
		}
	}

	if len(errs) > 0 {
		return settled, errors.Join(errs...)
	}
	w.since = pollTime
	log.Printf("[SYNC] ✅ Applied %d of %d transfer update(s)", settled, len(updates))
	return settled, nil
}
