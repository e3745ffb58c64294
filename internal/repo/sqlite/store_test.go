package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestEntitlementRepoDebitAndUnlockSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monetization.db")
	db := openTestDB(t, path)
	repo := NewEntitlementRepo(db, 1000)
	ctx := context.Background()

	result, err := repo.DebitAndUnlock(ctx, "u1", "node_paid", 300)
	if err != nil {
		t.Fatalf("debit and unlock: %v", err)
	}
	if result.Balance != 700 || result.Spent != 300 || result.AlreadyUnlocked {
		t.Fatalf("unexpected result: %+v", result)
	}

	again, err := repo.DebitAndUnlock(ctx, "u1", "node_paid", 300)
	if err != nil {
		t.Fatalf("repeat debit and unlock: %v", err)
	}
	if again.Balance != 700 || again.Spent != 0 || !again.AlreadyUnlocked {
		t.Fatalf("repeat unlock should be a no-op: %+v", again)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestDB(t, path)
	defer reopened.Close()
	entitlement, err := NewEntitlementRepo(reopened, 1000).Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if entitlement.Coins != 700 {
		t.Fatalf("expected 700 coins after restart, got %d", entitlement.Coins)
	}
	if !entitlement.HasUnlocked("node_paid") {
		t.Fatalf("expected node_paid unlocked after restart: %+v", entitlement.UnlockedContentIDs)
	}
}

func TestEntitlementRepoInsufficientFundsLeavesBalance(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	repo := NewEntitlementRepo(db, 100)
	ctx := context.Background()

	_, err := repo.DebitAndUnlock(ctx, "u1", "node_paid", 300)
	if !errors.Is(err, failure.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if failure.Reason(err) != "insufficient coins, balance 100" {
		t.Fatalf("unexpected reason: %q", failure.Reason(err))
	}

	entitlement, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement.Coins != 100 || len(entitlement.UnlockedContentIDs) != 0 {
		t.Fatalf("state changed after failed debit: %+v", entitlement)
	}
}

func TestEntitlementRepoConcurrentDebitSpendsOnce(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	repo := NewEntitlementRepo(db, 1000)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	spent := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := repo.DebitAndUnlock(ctx, "u1", "node_paid", 300)
			if err != nil {
				t.Errorf("debit: %v", err)
				return
			}
			spent <- result.Spent
		}()
	}
	wg.Wait()
	close(spent)

	var total int64
	for s := range spent {
		total += s
	}
	if total != 300 {
		t.Fatalf("expected exactly one debit of 300, got %d", total)
	}
}

func TestEntitlementRepoGrantCreditReset(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	repo := NewEntitlementRepo(db, 1000)
	ctx := context.Background()

	first, err := repo.GrantUnlock(ctx, "u1", "node_ad")
	if err != nil || first.AlreadyUnlocked {
		t.Fatalf("first grant: %+v %v", first, err)
	}
	second, err := repo.GrantUnlock(ctx, "u1", "node_ad")
	if err != nil || !second.AlreadyUnlocked {
		t.Fatalf("second grant should be idempotent: %+v %v", second, err)
	}

	balance, err := repo.Credit(ctx, "u1", 500)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 1500 {
		t.Fatalf("expected 1500, got %d", balance)
	}

	fresh, err := repo.Credit(ctx, "new-user", 100)
	if err != nil {
		t.Fatalf("credit new user: %v", err)
	}
	if fresh != 1100 {
		t.Fatalf("new user credit should start from default balance, got %d", fresh)
	}

	reset, err := repo.Reset(ctx, "u1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Coins != 1000 || len(reset.UnlockedContentIDs) != 0 {
		t.Fatalf("unexpected reset result: %+v", reset)
	}
	entitlement, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement.HasUnlocked("node_ad") {
		t.Fatalf("reset should clear unlocks")
	}
}

func TestPurchaseLedgerRejectsDuplicateTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	db := openTestDB(t, path)
	ledger := NewPurchaseLedgerRepo(db)
	ctx := context.Background()

	record := model.PurchaseRecord{
		TransactionID: "tx-1",
		UserID:        "u1",
		PackageID:     "pack_500",
		CoinsGranted:  500,
		Platform:      enums.PlatformIOS,
	}
	if _, err := ledger.Append(ctx, record); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := ledger.Append(ctx, record); !errors.Is(err, failure.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}
	_ = db.Close()

	reopened := openTestDB(t, path)
	defer reopened.Close()
	exists, err := NewPurchaseLedgerRepo(reopened).Exists(ctx, "tx-1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("purchase record must survive restart")
	}
}

func TestPurchaseLedgerCompactKeepsWindowAndPending(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	ledger := NewPurchaseLedgerRepo(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	for _, record := range []model.PurchaseRecord{
		{TransactionID: "old-credited", UserID: "u1", PackageID: "pack_100", CoinsGranted: 100, Platform: enums.PlatformAndroid, Status: enums.PurchaseStatusCredited, Timestamp: old},
		{TransactionID: "old-pending", UserID: "u1", PackageID: "pack_100", CoinsGranted: 100, Platform: enums.PlatformAndroid, Timestamp: old},
		{TransactionID: "recent", UserID: "u1", PackageID: "pack_500", CoinsGranted: 500, Platform: enums.PlatformAndroid, Status: enums.PurchaseStatusCredited, Timestamp: now.Add(-time.Hour)},
	} {
		if _, err := ledger.Append(ctx, record); err != nil {
			t.Fatalf("append %s: %v", record.TransactionID, err)
		}
	}
	removed, err := ledger.Compact(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 record removed, got %d", removed)
	}

	for id, want := range map[string]bool{"old-credited": false, "old-pending": true, "recent": true} {
		exists, err := ledger.Exists(ctx, id)
		if err != nil {
			t.Fatalf("exists %s: %v", id, err)
		}
		if exists != want {
			t.Fatalf("record %s exists=%v want %v", id, exists, want)
		}
	}

	pending, err := ledger.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionID != "old-pending" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	entitlements := NewEntitlementRepo(db, 1000)
	balance, err := entitlements.CreditPurchase(ctx, "u1", "old-pending", 100)
	if err != nil || balance != 1100 {
		t.Fatalf("first settle: %d %v", balance, err)
	}
	if _, err := entitlements.CreditPurchase(ctx, "u1", "old-pending", 100); !errors.Is(err, failure.ErrDuplicateTransaction) {
		t.Fatalf("second settle must fail as duplicate, got %v", err)
	}

	stats, err := ledger.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPurchases != 2 || stats.TotalCoins != 600 || stats.ByPackage["pack_500"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCreditPurchaseWithCancelledContextKeepsRecordPending(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	ledger := NewPurchaseLedgerRepo(db)
	entitlements := NewEntitlementRepo(db, 1000)

	if _, err := ledger.Append(context.Background(), model.PurchaseRecord{
		TransactionID: "tx-cancel",
		UserID:        "u1",
		PackageID:     "pack_500",
		CoinsGranted:  500,
		Platform:      enums.PlatformAndroid,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := entitlements.CreditPurchase(cancelled, "u1", "tx-cancel", 500); err == nil {
		t.Fatalf("settle with a cancelled context must fail")
	}

	ctx := context.Background()
	pending, err := ledger.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionID != "tx-cancel" {
		t.Fatalf("record must stay pending: %+v", pending)
	}
	entitlement, err := entitlements.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entitlement.Coins != 1000 {
		t.Fatalf("balance must be untouched, got %d", entitlement.Coins)
	}

	balance, err := entitlements.CreditPurchase(ctx, "u1", "tx-cancel", 500)
	if err != nil || balance != 1500 {
		t.Fatalf("retry settle: %d %v", balance, err)
	}
}

func TestAdCompletionRepoStats(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	defer db.Close()
	repo := NewAdCompletionRepo(db)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, c := range []model.AdCompletion{
		{ContentID: "n1", UserID: "u1", Platform: enums.PlatformAndroid, AdType: enums.AdTypeRewarded, Duration: 31 * time.Second, CompletedAt: now},
		{ContentID: "n1", UserID: "u2", Platform: enums.PlatformIOS, AdType: enums.AdTypeRewarded, Duration: 32 * time.Second, CompletedAt: now},
		{ContentID: "n2", UserID: "u1", Platform: enums.PlatformAndroid, AdType: enums.AdTypeRewarded, Duration: 30 * time.Second, CompletedAt: now},
	} {
		if err := repo.Append(ctx, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAds != 3 || stats.ByPlatform["android"] != 2 || stats.ByContentID["n1"] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
