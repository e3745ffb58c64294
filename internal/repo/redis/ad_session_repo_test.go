package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

func TestAdSessionRepoTakeIsSingleUse(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewAdSessionRepo(client, nil)
	ctx := context.Background()
	session := model.AdSession{
		TrackingID: "track-1",
		ContentID:  "node_ad",
		UserID:     "u1",
		Platform:   enums.PlatformAndroid,
		AdType:     enums.AdTypeRewarded,
		StartTime:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := repo.Save(ctx, session, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, session, time.Hour); err == nil {
		t.Fatalf("expected error when saving the same tracking id twice")
	}

	got, err := repo.Take(ctx, "track-1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got.ContentID != "node_ad" || got.Platform != enums.PlatformAndroid || !got.StartTime.Equal(session.StartTime) {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := repo.Take(ctx, "track-1"); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("expected not found on second take, got %v", err)
	}
	if count, _ := repo.Count(ctx); count != 0 {
		t.Fatalf("expected empty index, got %d", count)
	}
}

func TestAdSessionRepoTakeSurvivesIndexFailure(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	core, logs := observer.New(zap.WarnLevel)
	repo := NewAdSessionRepo(client, zap.New(core))
	ctx := context.Background()
	session := model.AdSession{
		TrackingID: "track-9",
		ContentID:  "node_ad",
		UserID:     "u1",
		Platform:   enums.PlatformIOS,
		AdType:     enums.AdTypeRewarded,
		StartTime:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := repo.Save(ctx, session, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A non-zset value under the index key makes ZREM fail with WRONGTYPE.
	mr.Del(adSessionIndexKey)
	if err := mr.Set(adSessionIndexKey, "broken"); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}

	got, err := repo.Take(ctx, "track-9")
	if err != nil {
		t.Fatalf("take must hand over the session after GETDEL, got %v", err)
	}
	if got.TrackingID != "track-9" || got.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if logs.FilterMessage("unindex ad session failed").Len() != 1 {
		t.Fatalf("expected the index failure to be logged")
	}
	if _, err := repo.Take(ctx, "track-9"); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("expected not found on second take, got %v", err)
	}
}

func TestAdSessionRepoDeleteStartedBefore(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewAdSessionRepo(client, nil)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	for id, start := range map[string]time.Time{
		"stale-1": now.Add(-2 * time.Hour),
		"stale-2": now.Add(-61 * time.Minute),
		"fresh":   now.Add(-5 * time.Minute),
	} {
		if err := repo.Save(ctx, model.AdSession{TrackingID: id, ContentID: "n", UserID: "u", StartTime: start}, 3*time.Hour); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	removed, err := repo.DeleteStartedBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := repo.Take(ctx, "stale-1"); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	if _, err := repo.Take(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}

func TestRateRepoIncrementWindowExpires(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewRateRepo(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
		if err != nil {
			t.Fatalf("increment #%d: %v", i, err)
		}
		if count != i || ttl <= 0 {
			t.Fatalf("unexpected window state #%d: count=%d ttl=%s", i, count, ttl)
		}
	}

	mr.FastForward(61 * time.Second)

	count, _, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
	if err != nil {
		t.Fatalf("increment after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected window reset, got %d", count)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
