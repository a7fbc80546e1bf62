package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix namespaces the dead-letter list of each job queue.
const DLQPrefix = "dlq:"

// dlqCap keeps a runaway failure loop from growing a dead-letter list forever.
const dlqCap = 1000

// DLQEntry is a job that will not be retried automatically: a malformed
// envelope, an unknown job type, or a receipt past its retry budget.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// SendToDLQ parks a failed job on dlq:{queue}. Failures to park are logged
// and swallowed; the receipt row still records the error.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue string, jobType string, payload json.RawMessage, reason string, attempts int) {
	logger := log.With().Str("queue", queue).Str("job_type", jobType).Logger()
	if rdb == nil {
		logger.Error().Str("reason", reason).Msg("dead letter dropped, no redis client")
		return
	}
	// Keep unparseable envelopes readable by storing them as a JSON string.
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(payload))
	}

	data, err := json.Marshal(DLQEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		Payload:       payload,
		Reason:        reason,
		Attempts:      attempts,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("dead letter marshal failed")
		return
	}

	key := DLQPrefix + queue
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, dlqCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error().Err(err).Str("dlq_key", key).Msg("dead letter push failed")
		return
	}
	logger.Warn().Str("reason", reason).Int("attempts", attempts).Msg("job dead-lettered")
}

// DLQLength reports how many jobs are parked for queue.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// PeekDLQ returns the n newest entries for queue without removing them.
// Entries that no longer decode are skipped.
func PeekDLQ(ctx context.Context, rdb *redis.Client, queue string, n int64) ([]DLQEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := rdb.LRange(ctx, DLQPrefix+queue, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DLQEntry, 0, len(raw))
	for _, r := range raw {
		var e DLQEntry
		if json.Unmarshal([]byte(r), &e) == nil {
			out = append(out, e)
		}
	}
	return out, nil
}
