// Package adsessions tracks rewarded-ad views between the ad request and its
// verification. Each session is keyed by a random single-use tracking id.
package adsessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const (
	DefaultMaxAge  = time.Hour
	trackingIDSize = 16
	createAttempts = 3
)

type Store interface {
	Save(ctx context.Context, session model.AdSession, ttl time.Duration) error
	Take(ctx context.Context, trackingID string) (model.AdSession, error)
	DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int64, error)
}

type Tracker struct {
	store  Store
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time
	random func([]byte) (int, error)
}

func NewTracker(store Store, maxAge time.Duration, logger *zap.Logger) *Tracker {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
		random: rand.Read,
	}
}

func (t *Tracker) MaxAge() time.Duration {
	return t.maxAge
}

func (t *Tracker) Create(ctx context.Context, contentID, userID string, platform enums.Platform, adType enums.AdType) (model.AdSession, error) {
	if strings.TrimSpace(contentID) == "" || strings.TrimSpace(userID) == "" {
		return model.AdSession{}, failure.New(failure.CodeValidation, "contentId and userId are required")
	}
	if t.store == nil {
		return model.AdSession{}, failure.Storage(fmt.Errorf("ad session store is nil"))
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		trackingID, err := t.newTrackingID()
		if err != nil {
			return model.AdSession{}, failure.Storage(err)
		}

		session := model.AdSession{
			TrackingID: trackingID,
			ContentID:  contentID,
			UserID:     userID,
			Platform:   platform,
			AdType:     adType,
			StartTime:  t.now().UTC(),
		}
		if err := t.store.Save(ctx, session, t.maxAge); err != nil {
			lastErr = err
			continue
		}
		return session, nil
	}

	t.logger.Error("create ad session failed", zap.String("user_id", userID), zap.Error(lastErr))
	return model.AdSession{}, failure.Storage(lastErr)
}

// Consume returns the session and removes it. A second call with the same id
// returns failure.ErrNotFound.
func (t *Tracker) Consume(ctx context.Context, trackingID string) (model.AdSession, error) {
	if t.store == nil {
		return model.AdSession{}, failure.Storage(fmt.Errorf("ad session store is nil"))
	}

	session, err := t.store.Take(ctx, trackingID)
	if err != nil {
		if errors.Is(err, failure.ErrNotFound) {
			return model.AdSession{}, failure.ErrNotFound
		}
		t.logger.Error("consume ad session failed", zap.String("tracking_id", trackingID), zap.Error(err))
		return model.AdSession{}, failure.Storage(err)
	}

	// Sessions past max age may still be present if the sweep has not run yet.
	if t.now().UTC().Sub(session.StartTime) > t.maxAge {
		return model.AdSession{}, failure.ErrNotFound
	}
	return session, nil
}

func (t *Tracker) SweepExpired(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, fmt.Errorf("ad session store is nil")
	}
	removed, err := t.store.DeleteStartedBefore(ctx, t.now().UTC().Add(-t.maxAge))
	if err != nil {
		return 0, fmt.Errorf("sweep expired ad sessions: %w", err)
	}
	return removed, nil
}

func (t *Tracker) Active(ctx context.Context) (int64, error) {
	if t.store == nil {
		return 0, fmt.Errorf("ad session store is nil")
	}
	return t.store.Count(ctx)
}

func (t *Tracker) newTrackingID() (string, error) {
	buf := make([]byte, trackingIDSize)
	if _, err := t.random(buf); err != nil {
		return "", fmt.Errorf("generate tracking id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
