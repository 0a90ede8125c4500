package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"ScholarSaas/api/scholar/imports"
	"ScholarSaas/internal/config"
	"ScholarSaas/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

type HousekeepingConfig struct {
	SweepSchedule string
	PruneSchedule string
	TimeZone      string
	RetentionDays int
	MaxRetries    int
	RetryDelay    time.Duration
}

// NewDefaultHousekeepingConfig creates a new config with defaults from the config package
func NewDefaultHousekeepingConfig() *HousekeepingConfig {
	return &HousekeepingConfig{
		SweepSchedule: config.DefaultSessionSweepSchedule,
		PruneSchedule: config.DefaultBatchPruneSchedule,
		TimeZone:      config.DefaultTimeZone,
		RetentionDays: config.BatchRetentionDays,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Retrying after %v (attempt %d/%d)", delay, attempt, maxRetries))
			time.Sleep(delay)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.GlobalLogger.LogAudit(fmt.Sprintf("Attempt %d failed: %v", attempt+1, lastErr))
	}

	return fmt.Errorf("failed after %d attempts: %v", maxRetries+1, lastErr)
}

// RunSessionSweeper schedules the periodic purge of expired upload
// sessions so abandoned imports release their row buffers.
func RunSessionSweeper(cfg *HousekeepingConfig, sessions *imports.SessionManager) error {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for session sweeper: %v", err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.SweepSchedule, func() {
		purged := sessions.PurgeExpired()
		if purged > 0 {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Session sweeper purged %d expired import sessions", purged))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session sweeper: %v", err)
	}

	c.Start()
	return nil
}

// RunBatchPruner schedules the nightly deletion of old import batch
// audit rows past the retention window.
func RunBatchPruner(cfg *HousekeepingConfig, db *pgxpool.Pool) error {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for batch pruner: %v", err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.PruneSchedule, func() {
		pruneErr := RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			tag, err := db.Exec(ctx,
				`DELETE FROM scholar.import_batches WHERE created_at < now() - ($1 || ' days')::interval`,
				fmt.Sprintf("%d", cfg.RetentionDays))
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				logger.GlobalLogger.LogAudit(fmt.Sprintf("Batch pruner removed %d import batch rows", tag.RowsAffected()))
			}
			return nil
		})
		if pruneErr != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Batch pruner failed: %v", pruneErr))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule batch pruner: %v", err)
	}

	c.Start()
	return nil
}
