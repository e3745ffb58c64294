// Package memory holds process-local stores used by tests and the memory
// storage driver. Nothing here survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type entitlementRow struct {
	coins     int64
	unlocked  map[string]time.Time
	updatedAt time.Time
}

type EntitlementRepo struct {
	mu           sync.Mutex
	defaultCoins int64
	rows         map[string]*entitlementRow
	ledger       *PurchaseLedgerRepo
	now          func() time.Time
}

func NewEntitlementRepo(defaultCoins int64) *EntitlementRepo {
	return &EntitlementRepo{
		defaultCoins: defaultCoins,
		rows:         make(map[string]*entitlementRow),
		now:          time.Now,
	}
}

func (r *EntitlementRepo) Get(_ context.Context, userID string) (model.Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rowLocked(userID)
	return snapshot(userID, row), nil
}

func (r *EntitlementRepo) DebitAndUnlock(_ context.Context, userID, contentID string, price int64) (model.UnlockResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(contentID) == "" || price <= 0 {
		return model.UnlockResult{}, fmt.Errorf("invalid debit payload")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rowLocked(userID)
	result := model.UnlockResult{UserID: userID, ContentID: contentID, Balance: row.coins}
	if _, ok := row.unlocked[contentID]; ok {
		result.AlreadyUnlocked = true
		return result, nil
	}
	if row.coins < price {
		return model.UnlockResult{}, failure.New(failure.CodeInsufficientFunds, "insufficient coins, balance %d", row.coins)
	}

	now := r.now().UTC()
	row.coins -= price
	row.unlocked[contentID] = now
	row.updatedAt = now

	result.Balance = row.coins
	result.Spent = price
	return result, nil
}

func (r *EntitlementRepo) GrantUnlock(_ context.Context, userID, contentID string) (model.UnlockResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(contentID) == "" {
		return model.UnlockResult{}, fmt.Errorf("invalid grant payload")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rowLocked(userID)
	result := model.UnlockResult{UserID: userID, ContentID: contentID, Balance: row.coins}
	if _, ok := row.unlocked[contentID]; ok {
		result.AlreadyUnlocked = true
		return result, nil
	}

	now := r.now().UTC()
	row.unlocked[contentID] = now
	row.updatedAt = now
	return result, nil
}

func (r *EntitlementRepo) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("invalid user id")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rowLocked(userID)
	row.coins += amount
	row.updatedAt = r.now().UTC()
	return row.coins, nil
}

// AttachLedger links the purchase ledger CreditPurchase settles against.
func (r *EntitlementRepo) AttachLedger(ledger *PurchaseLedgerRepo) {
	r.ledger = ledger
}

// CreditPurchase flips a reconcile_pending purchase to credited and adds its
// coins while holding both the ledger and the balance locks.
func (r *EntitlementRepo) CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(transactionID) == "" || amount <= 0 {
		return 0, fmt.Errorf("invalid purchase credit payload")
	}
	if r.ledger == nil {
		return 0, fmt.Errorf("purchase ledger is not attached")
	}

	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()

	record, ok := r.ledger.records[strings.TrimSpace(transactionID)]
	if !ok || record.UserID != userID || record.Status != enums.PurchaseStatusReconcilePending {
		return 0, failure.ErrDuplicateTransaction
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rowLocked(userID)
	row.coins += amount
	row.updatedAt = r.now().UTC()

	record.Status = enums.PurchaseStatusCredited
	r.ledger.records[record.TransactionID] = record
	return row.coins, nil
}

func (r *EntitlementRepo) Reset(_ context.Context, userID string) (model.Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := &entitlementRow{
		coins:     r.defaultCoins,
		unlocked:  make(map[string]time.Time),
		updatedAt: r.now().UTC(),
	}
	r.rows[userID] = row
	return snapshot(userID, row), nil
}

func (r *EntitlementRepo) rowLocked(userID string) *entitlementRow {
	row, ok := r.rows[userID]
	if !ok {
		row = &entitlementRow{
			coins:     r.defaultCoins,
			unlocked:  make(map[string]time.Time),
			updatedAt: r.now().UTC(),
		}
		r.rows[userID] = row
	}
	return row
}

func snapshot(userID string, row *entitlementRow) model.Entitlement {
	unlocked := make([]string, 0, len(row.unlocked))
	for contentID := range row.unlocked {
		unlocked = append(unlocked, contentID)
	}
	sort.Slice(unlocked, func(i, j int) bool {
		ti, tj := row.unlocked[unlocked[i]], row.unlocked[unlocked[j]]
		if ti.Equal(tj) {
			return unlocked[i] < unlocked[j]
		}
		return ti.Before(tj)
	})

	return model.Entitlement{
		UserID:             userID,
		Coins:              row.coins,
		UnlockedContentIDs: unlocked,
		UpdatedAt:          row.updatedAt,
	}
}
