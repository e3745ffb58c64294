// Package ledger is the append-only record of verified purchases used for
// replay protection and reconciliation.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const DefaultRetention = 30 * 24 * time.Hour

type Store interface {
	Exists(ctx context.Context, transactionID string) (bool, error)
	Append(ctx context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error)
	Get(ctx context.Context, transactionID string) (model.PurchaseRecord, error)
	ListPending(ctx context.Context, limit int) ([]model.PurchaseRecord, error)
	Compact(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (model.PaymentStats, error)
}

type Service struct {
	store     Store
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, retention time.Duration, logger *zap.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Exists(ctx context.Context, transactionID string) (bool, error) {
	if s.store == nil {
		return false, fmt.Errorf("purchase ledger store is nil")
	}
	return s.store.Exists(ctx, transactionID)
}

// Append records a purchase. Records start reconcile_pending and become
// credited only together with the balance credit. A concurrent append of the
// same transaction id fails with failure.ErrDuplicateTransaction.
func (s *Service) Append(ctx context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error) {
	if s.store == nil {
		return model.PurchaseRecord{}, failure.Storage(fmt.Errorf("purchase ledger store is nil"))
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}

	stored, err := s.store.Append(ctx, record)
	if err != nil {
		if failure.CodeOf(err) == failure.CodeDuplicateTransaction {
			return model.PurchaseRecord{}, err
		}
		s.logger.Error("purchase ledger append failed",
			zap.String("transaction_id", record.TransactionID),
			zap.Error(err),
		)
		return model.PurchaseRecord{}, failure.Storage(err)
	}
	return stored, nil
}

func (s *Service) Get(ctx context.Context, transactionID string) (model.PurchaseRecord, error) {
	if s.store == nil {
		return model.PurchaseRecord{}, failure.Storage(fmt.Errorf("purchase ledger store is nil"))
	}
	record, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return model.PurchaseRecord{}, failure.Storage(err)
	}
	return record, nil
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]model.PurchaseRecord, error) {
	if s.store == nil {
		return nil, failure.Storage(fmt.Errorf("purchase ledger store is nil"))
	}
	records, err := s.store.ListPending(ctx, limit)
	if err != nil {
		return nil, failure.Storage(err)
	}
	return records, nil
}

// Compact drops credited records older than the retention window. Pending
// records and anything inside the window are kept.
func (s *Service) Compact(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, fmt.Errorf("purchase ledger store is nil")
	}
	cutoff := s.now().UTC().Add(-s.retention)
	removed, err := s.store.Compact(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("compact purchase ledger: %w", err)
	}
	return removed, nil
}

func (s *Service) Stats(ctx context.Context) (model.PaymentStats, error) {
	if s.store == nil {
		return model.PaymentStats{}, failure.Storage(fmt.Errorf("purchase ledger store is nil"))
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Error("payment stats failed", zap.Error(err))
		return model.PaymentStats{}, failure.Storage(err)
	}
	return stats, nil
}
