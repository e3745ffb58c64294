package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type PurchaseLedgerRepo struct {
	db  *DB
	now func() time.Time
}

func NewPurchaseLedgerRepo(db *DB) *PurchaseLedgerRepo {
	return &PurchaseLedgerRepo{db: db, now: time.Now}
}

func (r *PurchaseLedgerRepo) Exists(ctx context.Context, transactionID string) (bool, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var exists int
	if err := r.db.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchase_records WHERE transaction_id = ?)`,
		strings.TrimSpace(transactionID),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check purchase record: %w", err)
	}
	return exists == 1, nil
}

func (r *PurchaseLedgerRepo) Append(ctx context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return model.PurchaseRecord{}, fmt.Errorf("storage is not configured")
	}
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

	_, err := r.db.sqlDB.ExecContext(ctx, `
INSERT INTO purchase_records (
	id, transaction_id, user_id, package_id, coins_granted, platform, status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.TransactionID,
		record.UserID,
		record.PackageID,
		record.CoinsGranted,
		string(record.Platform),
		string(record.Status),
		toMillis(record.Timestamp),
		toMillis(r.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.PurchaseRecord{}, failure.ErrDuplicateTransaction
		}
		return model.PurchaseRecord{}, fmt.Errorf("append purchase record: %w", err)
	}

	record.Timestamp = fromMillis(toMillis(record.Timestamp))
	return record, nil
}

func (r *PurchaseLedgerRepo) Get(ctx context.Context, transactionID string) (model.PurchaseRecord, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return model.PurchaseRecord{}, fmt.Errorf("storage is not configured")
	}

	record, err := scanPurchaseRecord(r.db.sqlDB.QueryRowContext(ctx, `
SELECT id, transaction_id, user_id, package_id, coins_granted, platform, status, created_at
FROM purchase_records
WHERE transaction_id = ?`, strings.TrimSpace(transactionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PurchaseRecord{}, failure.New(failure.CodeNotFound, "purchase record not found")
		}
		return model.PurchaseRecord{}, fmt.Errorf("get purchase record: %w", err)
	}
	return record, nil
}

func (r *PurchaseLedgerRepo) ListPending(ctx context.Context, limit int) ([]model.PurchaseRecord, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.sqlDB.QueryContext(ctx, `
SELECT id, transaction_id, user_id, package_id, coins_granted, platform, status, created_at
FROM purchase_records
WHERE status = ?
ORDER BY created_at ASC
LIMIT ?`, string(enums.PurchaseStatusReconcilePending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending purchases: %w", err)
	}
	defer rows.Close()

	records := make([]model.PurchaseRecord, 0)
	for rows.Next() {
		record, err := scanPurchaseRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending purchase: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending purchases: %w", err)
	}
	return records, nil
}

func (r *PurchaseLedgerRepo) Compact(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	res, err := r.db.sqlDB.ExecContext(ctx,
		`DELETE FROM purchase_records WHERE created_at < ? AND status = ?`,
		toMillis(cutoff), string(enums.PurchaseStatusCredited),
	)
	if err != nil {
		return 0, fmt.Errorf("compact purchase records: %w", err)
	}
	return res.RowsAffected()
}

func (r *PurchaseLedgerRepo) Stats(ctx context.Context) (model.PaymentStats, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return model.PaymentStats{}, fmt.Errorf("storage is not configured")
	}

	rows, err := r.db.sqlDB.QueryContext(ctx,
		`SELECT package_id, COUNT(*), COALESCE(SUM(coins_granted), 0) FROM purchase_records GROUP BY package_id`,
	)
	if err != nil {
		return model.PaymentStats{}, fmt.Errorf("purchase stats: %w", err)
	}
	defer rows.Close()

	stats := model.PaymentStats{ByPackage: map[string]int64{}}
	for rows.Next() {
		var (
			packageID string
			count     int64
			coins     int64
		)
		if err := rows.Scan(&packageID, &count, &coins); err != nil {
			return model.PaymentStats{}, fmt.Errorf("scan purchase stats: %w", err)
		}
		stats.ByPackage[packageID] = count
		stats.TotalPurchases += count
		stats.TotalCoins += coins
	}
	if err := rows.Err(); err != nil {
		return model.PaymentStats{}, fmt.Errorf("iterate purchase stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseRecord(row rowScanner) (model.PurchaseRecord, error) {
	var (
		record    model.PurchaseRecord
		platform  string
		status    string
		createdAt int64
	)
	if err := row.Scan(
		&record.ID,
		&record.TransactionID,
		&record.UserID,
		&record.PackageID,
		&record.CoinsGranted,
		&platform,
		&status,
		&createdAt,
	); err != nil {
		return model.PurchaseRecord{}, err
	}
	record.Platform = enums.Platform(platform)
	record.Status = enums.PurchaseStatus(status)
	record.Timestamp = fromMillis(createdAt)
	return record, nil
}
