// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpiryScheduler sweeps on a fixed interval so stale entries and
// overdue matches are retired even when nobody calls the engine. The
// returned scheduler is stopped with Shutdown.
func (e *ExpiryMonitor) StartExpiryScheduler(ctx context.Context, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if err := e.Sweep(ctx); err != nil {
				log.Printf("[Scheduler] Sweep error: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	log.Printf("[Scheduler] ✅ expiry sweep every %s", every)
	return sched, nil
}
