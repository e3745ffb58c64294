package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const (
	adSessionPrefix   = "ad_session:"
	adSessionIndexKey = "ad_sessions:by_start"
)

// AdSessionRepo keeps in-flight ad sessions as JSON values with a TTL plus a
// sorted set of tracking ids scored by start time for the sweep.
type AdSessionRepo struct {
	client *goredis.Client
	logger *zap.Logger
}

func NewAdSessionRepo(client *goredis.Client, log *zap.Logger) *AdSessionRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdSessionRepo{client: client, logger: log}
}

func (r *AdSessionRepo) Save(ctx context.Context, session model.AdSession, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(session.TrackingID) == "" || ttl <= 0 {
		return fmt.Errorf("invalid ad session payload")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal ad session: %w", err)
	}

	pipe := r.client.TxPipeline()
	created := pipe.SetNX(ctx, adSessionKey(session.TrackingID), payload, ttl)
	pipe.ZAdd(ctx, adSessionIndexKey, goredis.Z{
		Score:  float64(session.StartTime.UnixMilli()),
		Member: session.TrackingID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ad session: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("ad session %s already exists", session.TrackingID)
	}

	return nil
}

// Take atomically reads and deletes the session. Once the value is gone the
// session belongs to the caller; a stale index entry is left for the sweep.
func (r *AdSessionRepo) Take(ctx context.Context, trackingID string) (model.AdSession, error) {
	if r.client == nil {
		return model.AdSession{}, fmt.Errorf("redis client is nil")
	}
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return model.AdSession{}, failure.ErrNotFound
	}

	raw, err := r.client.GetDel(ctx, adSessionKey(trackingID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return model.AdSession{}, failure.ErrNotFound
		}
		return model.AdSession{}, fmt.Errorf("take ad session: %w", err)
	}
	if err := r.client.ZRem(ctx, adSessionIndexKey, trackingID).Err(); err != nil {
		r.logger.Warn("unindex ad session failed",
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
	}

	var session model.AdSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return model.AdSession{}, fmt.Errorf("decode ad session: %w", err)
	}

	return session, nil
}

func (r *AdSessionRepo) DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	maxScore := strconv.FormatInt(cutoff.UnixMilli()-1, 10)
	ids, err := r.client.ZRangeByScore(ctx, adSessionIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired ad sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, adSessionKey(id))
		members = append(members, id)
	}

	pipe := r.client.TxPipeline()
	deleted := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, adSessionIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired ad sessions: %w", err)
	}

	return int(deleted.Val()), nil
}

func (r *AdSessionRepo) Count(ctx context.Context) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	count, err := r.client.ZCard(ctx, adSessionIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count ad sessions: %w", err)
	}
	return count, nil
}

func adSessionKey(trackingID string) string {
	return adSessionPrefix + trackingID
}
