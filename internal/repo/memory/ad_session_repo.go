package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type AdSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.AdSession
}

func NewAdSessionRepo() *AdSessionRepo {
	return &AdSessionRepo{sessions: make(map[string]model.AdSession)}
}

// Save ignores ttl; expiry is left to DeleteStartedBefore.
func (r *AdSessionRepo) Save(_ context.Context, session model.AdSession, _ time.Duration) error {
	if strings.TrimSpace(session.TrackingID) == "" {
		return fmt.Errorf("invalid ad session payload")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.TrackingID]; exists {
		return fmt.Errorf("ad session %s already exists", session.TrackingID)
	}
	r.sessions[session.TrackingID] = session
	return nil
}

func (r *AdSessionRepo) Take(_ context.Context, trackingID string) (model.AdSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[trackingID]
	if !ok {
		return model.AdSession{}, failure.ErrNotFound
	}
	delete(r.sessions, trackingID)
	return session, nil
}

func (r *AdSessionRepo) DeleteStartedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if session.StartTime.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *AdSessionRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}
