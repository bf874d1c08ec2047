package httpapi

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tinychat-dev/tinychat/internal/config"
)

const (
	defaultBurst = 5

	clientSweepPeriod = 5 * time.Minute
	clientIdleCutoff  = 10 * time.Minute
)

// RateLimiter enforces per-IP request limits with token buckets. Limits
// come from the config store on every check, so a hot reload takes
// effect without restarting; rpm <= 0 disables limiting entirely.
type RateLimiter struct {
	cfg     *config.Store
	clients sync.Map // ip → *clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos; read by the sweeper goroutine
}

func NewRateLimiter(cfg *config.Store) *RateLimiter {
	rl := &RateLimiter{cfg: cfg}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	limits := rl.cfg.Get().Limits
	if limits.RateRPM <= 0 {
		return true
	}
	limit := rate.Limit(float64(limits.RateRPM) / 60.0)
	burst := limits.RateBurst
	if burst <= 0 {
		burst = defaultBurst
	}

	b := rl.bucket(ip, limit, burst)
	b.lastSeen.Store(time.Now().UnixNano())
	if b.limiter.Limit() != limit {
		b.limiter.SetLimit(limit)
	}
	if b.limiter.Burst() != burst {
		b.limiter.SetBurst(burst)
	}

	if !b.limiter.Allow() {
		slog.Warn("security.rate_limited", "ip", ip)
		return false
	}
	return true
}

// Enabled reports whether the limiter is active under the current config.
func (rl *RateLimiter) Enabled() bool {
	return rl.cfg.Get().Limits.RateRPM > 0
}

func (rl *RateLimiter) bucket(ip string, limit rate.Limit, burst int) *clientBucket {
	if v, ok := rl.clients.Load(ip); ok {
		return v.(*clientBucket)
	}
	b := &clientBucket{limiter: rate.NewLimiter(limit, burst)}
	b.lastSeen.Store(time.Now().UnixNano())
	actual, _ := rl.clients.LoadOrStore(ip, b)
	return actual.(*clientBucket)
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(clientSweepPeriod)
	defer ticker.Stop()
	for range ticker.C {
		rl.sweep()
	}
}

// sweep drops buckets of clients idle past the cutoff.
func (rl *RateLimiter) sweep() {
	cutoff := time.Now().Add(-clientIdleCutoff).UnixNano()
	rl.clients.Range(func(key, value any) bool {
		if value.(*clientBucket).lastSeen.Load() < cutoff {
			rl.clients.Delete(key)
		}
		return true
	})
}
