package rate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Window is one fixed-window budget; a zero Limit disables it.
type Window struct {
	Name   string
	Length time.Duration
	Limit  int
}

type Limiter struct {
	store   WindowStore
	scope   string
	windows []Window
}

func NewLimiter(store WindowStore, scope string, windows ...Window) *Limiter {
	active := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Limit > 0 && w.Length > 0 {
			active = append(active, w)
		}
	}

	return &Limiter{
		store:   store,
		scope:   scope,
		windows: active,
	}
}

// NewAdRequestLimiter limits ad requests per user per minute, with a 10 second
// burst budget of a third of that.
func NewAdRequestLimiter(store WindowStore, perMinute int) *Limiter {
	burst := 0
	if perMinute > 0 {
		burst = perMinute / 3
		if burst < 1 {
			burst = 1
		}
	}
	return NewLimiter(store, "ads",
		Window{Name: "min", Length: time.Minute, Limit: perMinute},
		Window{Name: "10s", Length: 10 * time.Second, Limit: burst},
	)
}

// Allow counts one action for subject and returns the retry-after in seconds
// when any window is exhausted.
func (l *Limiter) Allow(ctx context.Context, subject string) (int64, bool, error) {
	if strings.TrimSpace(subject) == "" {
		return 0, false, fmt.Errorf("rate subject is required")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	retryAfterSec := int64(0)
	for _, w := range l.windows {
		count, ttl, err := l.store.IncrementWindow(ctx, l.key(w, subject), w.Length)
		if err != nil {
			return 0, false, err
		}
		if count > int64(w.Limit) {
			retryAfterSec = maxInt64(retryAfterSec, ceilSeconds(ttl))
		}
	}

	if retryAfterSec > 0 {
		return retryAfterSec, false, nil
	}

	return 0, true, nil
}

func (l *Limiter) key(w Window, subject string) string {
	return "rate:" + l.scope + ":" + w.Name + ":" + subject
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
