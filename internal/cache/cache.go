// Package cache implements the resilient two-tier cache: a distributed tier
// shared between instances and a bounded in-process fallback tier, with a
// circuit breaker guarding the distributed tier. Cache failures never surface
// to callers; every operation degrades to a miss or a no-op instead.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// Options tunes the resilient cache.
type Options struct {
	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// LocalCapacity bounds the fallback tier entry count.
	LocalCapacity int

	// BreakerThreshold is the number of consecutive distributed-tier failures
	// that trips the breaker.
	BreakerThreshold uint32

	// BreakerCooldown is how long the breaker stays open before a half-open
	// probe is allowed through.
	BreakerCooldown time.Duration
}

// Stats is a point-in-time snapshot of cache behavior for the admin surface.
type Stats struct {
	LocalSize    int    `json:"local_size"`
	RemoteSize   int64  `json:"remote_size"`
	RemoteHits   int64  `json:"remote_hits"`
	LocalHits    int64  `json:"local_hits"`
	Misses       int64  `json:"misses"`
	BreakerState string `json:"breaker_state"`
}

// Resilient is the two-tier cache. The zero value is not usable; construct
// with New.
type Resilient struct {
	remote  RemoteStore // nil when no distributed tier is configured
	local   *localStore
	breaker *gobreaker.CircuitBreaker
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	remoteHits atomic.Int64
	localHits  atomic.Int64
	misses     atomic.Int64
}

// New creates a resilient cache. remote may be nil, in which case every
// operation runs against the local tier only.
func New(remote RemoteStore, opts Options, logger *slog.Logger) *Resilient {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 3
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	threshold := opts.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "distributed-cache",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &Resilient{
		remote:  remote,
		local:   newLocalStore(opts.LocalCapacity),
		breaker: breaker,
		opts:    opts,
		logger:  logger.With("component", "resilient_cache"),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or found=false on a miss. A
// distributed-tier hit is returned directly; on remote miss, skip, or failure
// the local tier is consulted.
func (c *Resilient) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.remote != nil {
		val, found, ok := c.remoteGet(ctx, key)
		if ok && found {
			c.remoteHits.Add(1)
			return val, true
		}
	}

	if val, found := c.local.get(key, c.now()); found {
		c.localHits.Add(1)
		return val, true
	}

	c.misses.Add(1)
	return nil, false
}

// Set writes the value to both tiers when the distributed tier is reachable,
// and to the local tier alone otherwise. No compensating remote write is
// scheduled once the breaker closes again; the next miss repopulates it.
func (c *Resilient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	if c.remote != nil {
		c.remoteDo(ctx, "set", func() error {
			return c.remote.Set(ctx, key, value, ttl)
		})
	}

	c.local.set(key, value, ttl, c.now())
}

// Delete removes the key from both tiers.
func (c *Resilient) Delete(ctx context.Context, key string) {
	if c.remote != nil {
		c.remoteDo(ctx, "delete", func() error {
			return c.remote.Delete(ctx, key)
		})
	}
	c.local.delete(key)
}

// Exists reports whether the key is present in either tier.
func (c *Resilient) Exists(ctx context.Context, key string) bool {
	if c.remote != nil {
		result, err := c.breaker.Execute(func() (any, error) {
			found, err := c.remote.Exists(ctx, key)
			return found, err
		})
		if err == nil && result.(bool) {
			return true
		}
	}
	return c.local.exists(key, c.now())
}

// InvalidatePattern removes every entry matching the glob pattern from both
// tiers and returns the number of distinct keys removed.
func (c *Resilient) InvalidatePattern(ctx context.Context, pattern string) int {
	removed := make(map[string]struct{})

	if c.remote != nil {
		c.remoteDo(ctx, "invalidate", func() error {
			keys, err := c.remote.Keys(ctx, pattern)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return nil
			}
			if err := c.remote.Delete(ctx, keys...); err != nil {
				return err
			}
			for _, k := range keys {
				removed[k] = struct{}{}
			}
			return nil
		})
	}

	for _, k := range c.local.invalidatePattern(pattern) {
		removed[k] = struct{}{}
	}

	return len(removed)
}

// ClearAll drops every entry from both tiers.
func (c *Resilient) ClearAll(ctx context.Context) {
	if c.remote != nil {
		c.remoteDo(ctx, "clear", func() error {
			keys, err := c.remote.Keys(ctx, "*")
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return nil
			}
			return c.remote.Delete(ctx, keys...)
		})
	}
	c.local.clear()
}

// Stats returns a snapshot of tier sizes, hit counters, and breaker state.
func (c *Resilient) Stats(ctx context.Context) Stats {
	s := Stats{
		LocalSize:    c.local.size(),
		RemoteSize:   -1,
		RemoteHits:   c.remoteHits.Load(),
		LocalHits:    c.localHits.Load(),
		Misses:       c.misses.Load(),
		BreakerState: c.breaker.State().String(),
	}

	if c.remote != nil {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.remote.Size(ctx)
		})
		if err == nil {
			s.RemoteSize = result.(int64)
		}
	}

	return s
}

// remoteGet attempts the distributed tier under the breaker. The third return
// reports whether the attempt went through; false means skipped or failed.
func (c *Resilient) remoteGet(ctx context.Context, key string) (val []byte, found, ok bool) {
	result, err := c.breaker.Execute(func() (any, error) {
		v, f, err := c.remote.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !f {
			return nil, nil
		}
		return v, nil
	})
	if err != nil {
		c.logBreakerErr("get", err)
		return nil, false, false
	}
	if result == nil {
		return nil, false, true
	}
	return result.([]byte), true, true
}

// remoteDo runs a remote mutation under the breaker, degrading silently.
func (c *Resilient) remoteDo(ctx context.Context, op string, fn func() error) {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		c.logBreakerErr(op, err)
	}
}

func (c *Resilient) logBreakerErr(op string, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("distributed tier skipped, breaker open", "op", op)
		return
	}
	c.logger.Warn("distributed tier operation failed, falling back to local tier",
		"op", op, "error", err)
}
