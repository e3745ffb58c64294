package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type PurchaseLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseLedgerRepo(pool *pgxpool.Pool) *PurchaseLedgerRepo {
	return &PurchaseLedgerRepo{pool: pool}
}

func (r *PurchaseLedgerRepo) Exists(ctx context.Context, transactionID string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM purchase_records WHERE transaction_id = $1)
`, strings.TrimSpace(transactionID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check purchase record: %w", err)
	}

	return exists, nil
}

// Append inserts a new record. The unique index on transaction_id settles any
// race between two concurrent appends of the same transaction.
func (r *PurchaseLedgerRepo) Append(ctx context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error) {
	if r.pool == nil {
		return model.PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
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
		record.Timestamp = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO purchase_records (
	id,
	transaction_id,
	user_id,
	package_id,
	coins_granted,
	platform,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
`, record.ID, record.TransactionID, record.UserID, record.PackageID, record.CoinsGranted,
		string(record.Platform), string(record.Status), record.Timestamp.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return model.PurchaseRecord{}, failure.ErrDuplicateTransaction
		}
		return model.PurchaseRecord{}, fmt.Errorf("append purchase record: %w", err)
	}

	return record, nil
}

func (r *PurchaseLedgerRepo) Get(ctx context.Context, transactionID string) (model.PurchaseRecord, error) {
	if r.pool == nil {
		return model.PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}

	record, err := scanPurchaseRecord(r.pool.QueryRow(ctx, `
SELECT id, transaction_id, user_id, package_id, coins_granted, platform, status, created_at
FROM purchase_records
WHERE transaction_id = $1
LIMIT 1
`, strings.TrimSpace(transactionID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PurchaseRecord{}, failure.New(failure.CodeNotFound, "purchase record not found")
		}
		return model.PurchaseRecord{}, fmt.Errorf("get purchase record: %w", err)
	}

	return record, nil
}

func (r *PurchaseLedgerRepo) ListPending(ctx context.Context, limit int) ([]model.PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, transaction_id, user_id, package_id, coins_granted, platform, status, created_at
FROM purchase_records
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2
`, string(enums.PurchaseStatusReconcilePending), limit)
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

// Compact deletes credited records created before cutoff.
func (r *PurchaseLedgerRepo) Compact(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM purchase_records
WHERE created_at < $1
  AND status = $2
`, cutoff.UTC(), string(enums.PurchaseStatusCredited))
	if err != nil {
		return 0, fmt.Errorf("compact purchase records: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *PurchaseLedgerRepo) Stats(ctx context.Context) (model.PaymentStats, error) {
	if r.pool == nil {
		return model.PaymentStats{}, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT package_id, COUNT(*), COALESCE(SUM(coins_granted), 0)
FROM purchase_records
GROUP BY package_id
`)
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

func scanPurchaseRecord(row pgx.Row) (model.PurchaseRecord, error) {
	var (
		record   model.PurchaseRecord
		id       uuid.UUID
		platform string
		status   string
	)
	if err := row.Scan(
		&id,
		&record.TransactionID,
		&record.UserID,
		&record.PackageID,
		&record.CoinsGranted,
		&platform,
		&status,
		&record.Timestamp,
	); err != nil {
		return model.PurchaseRecord{}, err
	}
	record.ID = id.String()
	record.Platform = enums.Platform(platform)
	record.Status = enums.PurchaseStatus(status)
	record.Timestamp = record.Timestamp.UTC()
	return record, nil
}
