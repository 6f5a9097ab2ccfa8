package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// sweepThreshold bounds how many idle keys are kept before a sweep.
const sweepThreshold = 4096

type keyLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket limiter for a single process.
type RateLimiter struct {
	mu   sync.Mutex
	keys map[string]*keyLimiter
	now  func() time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		keys: make(map[string]*keyLimiter),
		now:  time.Now,
	}
}

// Allow admits up to limit requests per window for key, refilled evenly.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	kl, ok := r.keys[key]
	if !ok {
		if len(r.keys) >= sweepThreshold {
			r.sweep(now, window)
		}
		kl = &keyLimiter{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		r.keys[key] = kl
	}
	kl.lastSeen = now
	return kl.lim.AllowN(now, 1), nil
}

func (r *RateLimiter) sweep(now time.Time, window time.Duration) {
	for k, kl := range r.keys {
		if now.Sub(kl.lastSeen) > window {
			delete(r.keys, k)
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
