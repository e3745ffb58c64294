package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// RateRepo is a fixed-window counter for single-instance deployments without Redis.
type RateRepo struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	now     func() time.Time
}

func NewRateRepo() *RateRepo {
	return &RateRepo{
		windows: make(map[string]rateWindow),
		now:     time.Now,
	}
}

func (r *RateRepo) IncrementWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if key == "" || window <= 0 {
		return 0, 0, fmt.Errorf("invalid rate window payload")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.count++
	r.windows[key] = w

	if len(r.windows) > 10000 {
		for k, v := range r.windows {
			if !now.Before(v.resetAt) {
				delete(r.windows, k)
			}
		}
	}

	return w.count, w.resetAt.Sub(now), nil
}
