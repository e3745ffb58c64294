package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/repo/memory"
)

func TestAppendConcurrentDuplicateOnlyOneWins(t *testing.T) {
	svc := NewService(memory.NewPurchaseLedgerRepo(), 0, nil)
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, model.PurchaseRecord{TransactionID: "tx-1", UserID: "u1", PackageID: "pack_100", CoinsGranted: 100})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, failure.ErrDuplicateTransaction):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || duplicates != 15 {
		t.Fatalf("expected 1 success and 15 duplicates, got %d/%d", successes, duplicates)
	}
}

func TestCompactUsesRetentionWindow(t *testing.T) {
	store := memory.NewPurchaseLedgerRepo()
	svc := NewService(store, 30*24*time.Hour, nil)
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for id, age := range map[string]time.Duration{
		"day-29": 29 * 24 * time.Hour,
		"day-31": 31 * 24 * time.Hour,
	} {
		if _, err := svc.Append(ctx, model.PurchaseRecord{TransactionID: id, UserID: "u1", PackageID: "pack_100", CoinsGranted: 100, Status: enums.PurchaseStatusCredited, Timestamp: now.Add(-age)}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	removed, err := svc.Compact(ctx)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if ok, _ := svc.Exists(ctx, "day-29"); !ok {
		t.Fatalf("record inside the window must keep its replay guard")
	}
	if ok, _ := svc.Exists(ctx, "day-31"); ok {
		t.Fatalf("record outside the window should be compacted")
	}
}
