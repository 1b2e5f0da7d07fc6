package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"casual-game-core/config"
	"casual-game-core/services"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-co-op/gocron/v2"
)

const settlementBatch = 100

// Jobs are the periodic sweeps of the core. Archiver and Leaderboards may be nil.
type Jobs struct {
	Challenges   *services.ChallengeService
	Matchmaking  *services.MatchmakingService
	Archiver     *AuditArchiver
	Leaderboards *services.LeaderboardService
	Intervals    config.Matchmaking
	RebuildEvery time.Duration
}

// sweep is a periodic job that is safe to retry.
type sweep func(ctx context.Context) (int64, error)

// retrying wraps a sweep with exponential backoff. Only idempotent sweeps are
// scheduled, so retrying after a store failure cannot double-apply anything.
func retrying(ctx context.Context, name string, fn sweep) func() {
	return func() {
		n, err := backoff.Retry(ctx, func() (int64, error) { return fn(ctx) },
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(3),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Printf("[Scheduler] %s failed, retrying in %s: %v", name, next, err)
			}),
		)
		if err != nil {
			log.Printf("[Scheduler] %s gave up: %v", name, err)
			return
		}
		if n > 0 {
			log.Printf("✅ [Scheduler] %s processed %d", name, n)
		}
	}
}

// StartScheduler registers every sweep and starts the scheduler. The caller shuts it
// down.
func StartScheduler(ctx context.Context, jobs Jobs) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	add := func(name string, def gocron.JobDefinition, fn sweep) error {
		_, err := sched.NewJob(def,
			gocron.NewTask(retrying(ctx, name, fn)),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		return nil
	}

	iv := jobs.Intervals
	if err := add("expire-challenges", gocron.DurationJob(iv.ExpirySweep), jobs.Challenges.ExpireStale); err != nil {
		return nil, err
	}
	if err := add("cleanup-pool", gocron.DurationJob(iv.PoolSweep), jobs.Matchmaking.CleanupPool); err != nil {
		return nil, err
	}
	settle := func(ctx context.Context) (int64, error) {
		n, err := jobs.Challenges.SettlePending(ctx, settlementBatch)
		return int64(n), err
	}
	if err := add("settle-challenges", gocron.DurationJob(iv.SettlementScan), settle); err != nil {
		return nil, err
	}
	if jobs.Archiver != nil {
		daily := gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0)))
		if err := add("archive-audit", daily, jobs.Archiver.ArchiveYesterday); err != nil {
			return nil, err
		}
	}

	if jobs.Leaderboards != nil {
		if err := add("rebuild-leaderboards", gocron.DurationJob(jobs.RebuildEvery), jobs.Leaderboards.Rebuild); err != nil {
			return nil, err
		}
	}

	sched.Start()
	log.Printf("✅ [Scheduler] started (expiry every %s, pool cleanup every %s, settlement scan every %s)",
		iv.ExpirySweep, iv.PoolSweep, iv.SettlementScan)
	return sched, nil
}
