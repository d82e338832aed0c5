package cachefs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"
)

// Stats is a point-in-time snapshot of cache activity counters. It
// supplements spec.md with the telemetry a production deployment of this
// cache needs, grounded in SnellerInc/sneller's tenant/dcache.Cache
// (Hits/Misses/Failures atomic counters).
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Failures  int64 `json:"failures"`
	Size      uint64 `json:"size_bytes"`
}

// Stats returns a snapshot of the cache's activity counters plus the
// recorded aggregate size (via [Cache.GetCacheSize]).
//
// This is fundamentally racy with respect to concurrent activity in this
// or other processes; it exists for observability and testing, not for
// making correctness decisions.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Failures:  c.failures.Load(),
	}

	if c.Enabled() {
		size, err := c.GetCacheSize()
		if err != nil {
			c.logf("cachefs: Stats: reading cache size: %s", err)
		} else {
			s.Size = size
		}
	}

	return s
}

// WriteSnapshot atomically writes a JSON encoding of [Cache.Stats] to
// path, using temp-file-plus-rename so a concurrent reader of path never
// observes a torn write. Intended for export by an operator tool, not for
// use on cachefs's own hot path; cachefs itself never calls it.
func (c *Cache) WriteSnapshot(path string) error {
	data, err := json.MarshalIndent(c.Stats(), "", "  ")
	if err != nil {
		return fmt.Errorf("cachefs: marshaling stats snapshot: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("cachefs: writing stats snapshot %s: %w", path, err)
	}

	return nil
}
