package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type PurchaseLedgerRepo struct {
	mu      sync.RWMutex
	records map[string]model.PurchaseRecord
	now     func() time.Time
}

func NewPurchaseLedgerRepo() *PurchaseLedgerRepo {
	return &PurchaseLedgerRepo{
		records: make(map[string]model.PurchaseRecord),
		now:     time.Now,
	}
}

func (r *PurchaseLedgerRepo) Exists(_ context.Context, transactionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[strings.TrimSpace(transactionID)]
	return ok, nil
}

func (r *PurchaseLedgerRepo) Append(_ context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error) {
	record.TransactionID = strings.TrimSpace(record.TransactionID)
	if record.TransactionID == "" || strings.TrimSpace(record.UserID) == "" || record.CoinsGranted <= 0 {
		return model.PurchaseRecord{}, fmt.Errorf("invalid purchase record payload")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = enums.PurchaseStatusReconcilePending
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.TransactionID]; exists {
		return model.PurchaseRecord{}, failure.ErrDuplicateTransaction
	}
	r.records[record.TransactionID] = record
	return record, nil
}

func (r *PurchaseLedgerRepo) Get(_ context.Context, transactionID string) (model.PurchaseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[strings.TrimSpace(transactionID)]
	if !ok {
		return model.PurchaseRecord{}, failure.New(failure.CodeNotFound, "purchase record not found")
	}
	return record, nil
}

func (r *PurchaseLedgerRepo) ListPending(_ context.Context, limit int) ([]model.PurchaseRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]model.PurchaseRecord, 0)
	for _, record := range r.records {
		if record.Status == enums.PurchaseStatusReconcilePending {
			pending = append(pending, record)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *PurchaseLedgerRepo) Compact(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, record := range r.records {
		if record.Status == enums.PurchaseStatusCredited && record.Timestamp.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}

func (r *PurchaseLedgerRepo) Stats(_ context.Context) (model.PaymentStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.PaymentStats{ByPackage: map[string]int64{}}
	for _, record := range r.records {
		stats.TotalPurchases++
		stats.TotalCoins += record.CoinsGranted
		stats.ByPackage[record.PackageID]++
	}
	return stats, nil
}
