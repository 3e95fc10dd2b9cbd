// internal/delivery/deadletter.go

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ctp-notifications/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxDeadLetters bounds the list; the oldest entries are trimmed first.
const maxDeadLetters = 10000

// DeadLetter is a unit that exhausted its retries or failed permanently.
type DeadLetter struct {
	ID       string       `json:"id"`
	Unit     Notification `json:"unit"`
	Error    string       `json:"error"`
	Attempts int          `json:"attempts"`
	FailedAt time.Time    `json:"failedAt"`
}

type DeadLetterSink interface {
	Push(ctx context.Context, unit Notification, cause error, attempts int) error
}

// DeadLetters is a Redis list of DeadLetter entries, newest first.
type DeadLetters struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

func NewDeadLetters(rdb redis.Cmdable, key string) *DeadLetters {
	return &DeadLetters{rdb: rdb, key: key, now: time.Now}
}

func (d *DeadLetters) Push(ctx context.Context, unit Notification, cause error, attempts int) error {
	entry := DeadLetter{
		ID:       uuid.New().String(),
		Unit:     unit,
		Attempts: attempts,
		FailedAt: d.now().UTC(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	pipe := d.rdb.TxPipeline()
	pipe.LPush(ctx, d.key, raw)
	pipe.LTrim(ctx, d.key, 0, maxDeadLetters-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dead letter %s: %w", unit.Key, err)
	}

	metrics.DeadLetters.WithLabelValues(unit.Channel).Inc()
	return nil
}

// List returns up to limit entries, newest first. Entries that no longer decode are skipped.
func (d *DeadLetters) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := d.rdb.LRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var entry DeadLetter
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (d *DeadLetters) Len(ctx context.Context) (int64, error) {
	n, err := d.rdb.LLen(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}
