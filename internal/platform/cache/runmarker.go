package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const runMarkerPrefix = "tally:run"

// RunMarker remembers which daily passes already ran for a calendar date.
type RunMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunMarker builds a marker. A nil client disables deduplication.
func NewRunMarker(client *redis.Client, ttl time.Duration) *RunMarker {
	if ttl <= 0 {
		ttl = 36 * time.Hour
	}
	return &RunMarker{client: client, ttl: ttl}
}

// Claim records that pass ran on day. It returns false when the pass was
// already claimed for that day.
func (m *RunMarker) Claim(ctx context.Context, pass string, day time.Time) (bool, error) {
	if m == nil || m.client == nil {
		return true, nil
	}
	ok, err := m.client.SetNX(ctx, runMarkerKey(pass, day), time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: claim %s: %w", pass, err)
	}
	return ok, nil
}

// Release forgets a claim so the pass may run again, used after a failed run.
func (m *RunMarker) Release(ctx context.Context, pass string, day time.Time) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Del(ctx, runMarkerKey(pass, day)).Err()
}

func runMarkerKey(pass string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", runMarkerPrefix, pass, day.Format("2006-01-02"))
}
