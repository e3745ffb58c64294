package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

func TestPurchaseLedgerRepoCompactSkipsPending(t *testing.T) {
	ledger := NewPurchaseLedgerRepo()
	ctx := context.Background()
	old := time.Now().Add(-45 * 24 * time.Hour)

	for id, status := range map[string]enums.PurchaseStatus{"a": enums.PurchaseStatusCredited, "b": ""} {
		if _, err := ledger.Append(ctx, model.PurchaseRecord{TransactionID: id, UserID: "u1", PackageID: "pack_100", CoinsGranted: 100, Status: status, Timestamp: old}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if _, err := ledger.Append(ctx, model.PurchaseRecord{TransactionID: "a", UserID: "u1", PackageID: "pack_100", CoinsGranted: 100}); !errors.Is(err, failure.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}

	removed, err := ledger.Compact(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if ok, _ := ledger.Exists(ctx, "b"); !ok {
		t.Fatalf("pending record must survive compaction")
	}
}

func TestEntitlementRepoCreditPurchaseSettlesOnce(t *testing.T) {
	ledger := NewPurchaseLedgerRepo()
	repo := NewEntitlementRepo(1000)
	repo.AttachLedger(ledger)
	ctx := context.Background()

	if _, err := ledger.Append(ctx, model.PurchaseRecord{TransactionID: "tx-1", UserID: "u1", PackageID: "pack_500", CoinsGranted: 500}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := repo.CreditPurchase(ctx, "u2", "tx-1", 500); !errors.Is(err, failure.ErrDuplicateTransaction) {
		t.Fatalf("another user's purchase must not settle, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := repo.CreditPurchase(cancelled, "u1", "tx-1", 500); err == nil {
		t.Fatalf("cancelled settle must fail")
	}
	if pending, _ := ledger.ListPending(ctx, 10); len(pending) != 1 {
		t.Fatalf("record must stay pending after a failed settle: %+v", pending)
	}

	balance, err := repo.CreditPurchase(ctx, "u1", "tx-1", 500)
	if err != nil || balance != 1500 {
		t.Fatalf("settle: %d %v", balance, err)
	}
	if _, err := repo.CreditPurchase(ctx, "u1", "tx-1", 500); !errors.Is(err, failure.ErrDuplicateTransaction) {
		t.Fatalf("second settle must fail as duplicate, got %v", err)
	}
	if pending, _ := ledger.ListPending(ctx, 10); len(pending) != 0 {
		t.Fatalf("settled record must leave the pending list: %+v", pending)
	}
}

func TestEntitlementRepoListsUnlocksInGrantOrder(t *testing.T) {
	repo := NewEntitlementRepo(50)
	ctx := context.Background()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for _, id := range []string{"n3", "n1", "n2"} {
		if _, err := repo.GrantUnlock(ctx, "u1", id); err != nil {
			t.Fatalf("grant %s: %v", id, err)
		}
	}
	if _, err := repo.DebitAndUnlock(ctx, "u1", "n4", 60); !errors.Is(err, failure.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	entitlement, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"n3", "n1", "n2"}
	for i, id := range want {
		if entitlement.UnlockedContentIDs[i] != id {
			t.Fatalf("unexpected unlock order: %v", entitlement.UnlockedContentIDs)
		}
	}
	if entitlement.Coins != 50 {
		t.Fatalf("unexpected balance: %d", entitlement.Coins)
	}
}
