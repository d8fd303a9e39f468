// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the periodic housekeeping jobs:
// a retry pass over undelivered reward grants, and an hourly recount of
// suspicious-activity counters for recently active profiles.
func StartMaintenanceScheduler(rewards *RewardLedgerClient, history *HistoryService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	// Every 5 minutes: one retry pass over undelivered grants.
	_, err = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			rewards.RetryUndelivered(ctx)
		}),
	)
	if err != nil {
		return nil, err
	}

	// Hourly: recount suspicious activity for profiles touched in the last day.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			since := time.Now().Add(-24 * time.Hour)
			updated, err := history.RecountSuspicious(since)
			if err != nil {
				log.Printf("[Scheduler] Suspicious recount failed: %v", err)
				return
			}
			if updated > 0 {
				log.Printf("✅ [Scheduler] Suspicious counters corrected for %d profiles", updated)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	return sched, nil
}
