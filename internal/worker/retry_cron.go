package worker

// retry_cron.go
// Background goroutine that periodically re-renders receipts left in status
// 'error' whose next_retry_at is in the past.

import (
	"context"
	"time"

	"retailpos/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10

	retryBackoffBase = 30 * time.Second
	retryBackoffMax  = 30 * time.Minute
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	Receipts repository.ReceiptRepository
	Worker   *ReceiptWorker
	Interval time.Duration // 0 = 30s
}

// StartRetryCron launches a background goroutine that ticks every Interval,
// loads due receipts and hands them back to the receipt worker.
// It stops when ctx is cancelled.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = retryTickInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig) int {
	due, err := cfg.Receipts.ListPendingRetries(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending retries")
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	log.Info().Int("count", len(due)).Msg("retry_cron: processing pending receipts")
	for i := range due {
		if ctx.Err() != nil {
			return i
		}
		cfg.Worker.Retry(ctx, &due[i])
	}
	return len(due)
}

// computeRetryBackoff doubles from 30s per failed attempt, capped at 30m.
func computeRetryBackoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := retryBackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= retryBackoffMax {
			return retryBackoffMax
		}
	}
	return d
}
