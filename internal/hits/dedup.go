package hits

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "gateway:dedup:"

// Deduper suppresses duplicate events inside a short window, backed by
// Redis so the window holds across gateway instances. Double-fired
// beacons (page transitions, retried sendBeacon calls) are the target;
// this is not rate limiting.
//
// Fail-open: if Redis is unreachable the event is treated as unseen.
// Losing dedup briefly beats dropping real events.
type Deduper struct {
	rdb    *redis.Client
	window time.Duration
}

// NewDeduper returns a deduper with the given window. A nil client
// disables dedup entirely.
func NewDeduper(rdb *redis.Client, window time.Duration) *Deduper {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Deduper{rdb: rdb, window: window}
}

// Seen records the key parts and reports whether they were already seen
// inside the window. The first caller for a given key gets false.
func (d *Deduper) Seen(ctx context.Context, parts ...string) bool {
	if d == nil || d.rdb == nil {
		return false
	}
	key := dedupKeyPrefix + strings.Join(parts, ":")
	set, err := d.rdb.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		return false
	}
	return !set
}
