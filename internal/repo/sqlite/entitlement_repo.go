package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type EntitlementRepo struct {
	db           *DB
	defaultCoins int64
	now          func() time.Time
}

func NewEntitlementRepo(db *DB, defaultCoins int64) *EntitlementRepo {
	return &EntitlementRepo{
		db:           db,
		defaultCoins: defaultCoins,
		now:          time.Now,
	}
}

func (r *EntitlementRepo) Get(ctx context.Context, userID string) (model.Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}

	var entitlement model.Entitlement
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		coins, updatedAt, err := r.ensureRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		unlocked, err := listUnlocks(ctx, tx, userID)
		if err != nil {
			return err
		}
		entitlement = model.Entitlement{
			UserID:             userID,
			Coins:              coins,
			UnlockedContentIDs: unlocked,
			UpdatedAt:          updatedAt,
		}
		return nil
	})
	if err != nil {
		return model.Entitlement{}, err
	}
	return entitlement, nil
}

func (r *EntitlementRepo) DebitAndUnlock(ctx context.Context, userID, contentID string, price int64) (model.UnlockResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(contentID) == "" || price <= 0 {
		return model.UnlockResult{}, fmt.Errorf("invalid debit payload")
	}

	result := model.UnlockResult{UserID: userID, ContentID: contentID}
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		coins, _, err := r.ensureRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		unlocked, err := hasUnlock(ctx, tx, userID, contentID)
		if err != nil {
			return err
		}
		if unlocked {
			result.Balance = coins
			result.AlreadyUnlocked = true
			return nil
		}
		if coins < price {
			return failure.New(failure.CodeInsufficientFunds, "insufficient coins, balance %d", coins)
		}

		now := toMillis(r.now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_entitlements SET coins = coins - ?, updated_at = ? WHERE user_id = ?`,
			price, now, userID,
		); err != nil {
			return fmt.Errorf("debit coins: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_unlocks (user_id, content_id, unlocked_at) VALUES (?, ?, ?)`,
			userID, contentID, now,
		); err != nil {
			return fmt.Errorf("insert unlock: %w", err)
		}
		result.Balance = coins - price
		result.Spent = price
		return nil
	})
	if err != nil {
		return model.UnlockResult{}, err
	}
	return result, nil
}

func (r *EntitlementRepo) GrantUnlock(ctx context.Context, userID, contentID string) (model.UnlockResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(contentID) == "" {
		return model.UnlockResult{}, fmt.Errorf("invalid grant payload")
	}

	result := model.UnlockResult{UserID: userID, ContentID: contentID}
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		coins, _, err := r.ensureRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = coins

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_unlocks (user_id, content_id, unlocked_at) VALUES (?, ?, ?)`,
			userID, contentID, toMillis(r.now()),
		)
		if err != nil {
			return fmt.Errorf("grant unlock: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("grant unlock rows: %w", err)
		}
		result.AlreadyUnlocked = affected == 0
		return nil
	})
	if err != nil {
		return model.UnlockResult{}, err
	}
	return result, nil
}

func (r *EntitlementRepo) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("invalid user id")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}

	var balance int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		coins, _, err := r.ensureRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_entitlements SET coins = coins + ?, updated_at = ? WHERE user_id = ?`,
			amount, toMillis(r.now()), userID,
		); err != nil {
			return fmt.Errorf("credit coins: %w", err)
		}
		balance = coins + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditPurchase flips a reconcile_pending purchase to credited and adds its
// coins in the same transaction. A record that is not pending fails with
// failure.ErrDuplicateTransaction.
func (r *EntitlementRepo) CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(transactionID) == "" || amount <= 0 {
		return 0, fmt.Errorf("invalid purchase credit payload")
	}

	var balance int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		now := toMillis(r.now())
		res, err := tx.ExecContext(ctx, `
UPDATE purchase_records SET status = ?, updated_at = ?
WHERE transaction_id = ? AND user_id = ? AND status = ?`,
			string(enums.PurchaseStatusCredited), now, transactionID, userID, string(enums.PurchaseStatusReconcilePending),
		)
		if err != nil {
			return fmt.Errorf("settle purchase record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle purchase record: %w", err)
		}
		if affected != 1 {
			return failure.ErrDuplicateTransaction
		}

		coins, _, err := r.ensureRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_entitlements SET coins = coins + ?, updated_at = ? WHERE user_id = ?`,
			amount, now, userID,
		); err != nil {
			return fmt.Errorf("credit coins: %w", err)
		}
		balance = coins + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *EntitlementRepo) Reset(ctx context.Context, userID string) (model.Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}

	now := r.now().UTC()
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_entitlements (user_id, coins, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET coins = excluded.coins, updated_at = excluded.updated_at`,
			userID, r.defaultCoins, toMillis(now), toMillis(now),
		); err != nil {
			return fmt.Errorf("reset coins: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_unlocks WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("reset unlocks: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Entitlement{}, err
	}

	return model.Entitlement{
		UserID:             userID,
		Coins:              r.defaultCoins,
		UnlockedContentIDs: []string{},
		UpdatedAt:          fromMillis(toMillis(now)),
	}, nil
}

func (r *EntitlementRepo) ensureRow(ctx context.Context, tx *sql.Tx, userID string) (int64, time.Time, error) {
	now := toMillis(r.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_entitlements (user_id, coins, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, r.defaultCoins, now, now,
	); err != nil {
		return 0, time.Time{}, fmt.Errorf("ensure entitlement row: %w", err)
	}

	var (
		coins     int64
		updatedAt int64
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT coins, updated_at FROM user_entitlements WHERE user_id = ?`, userID,
	).Scan(&coins, &updatedAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("read entitlement row: %w", err)
	}
	return coins, fromMillis(updatedAt), nil
}

func hasUnlock(ctx context.Context, tx *sql.Tx, userID, contentID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM user_unlocks WHERE user_id = ? AND content_id = ? LIMIT 1`,
		userID, contentID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check unlock: %w", err)
	}
	return true, nil
}

func listUnlocks(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT content_id FROM user_unlocks WHERE user_id = ? ORDER BY unlocked_at ASC, content_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	unlocked := make([]string, 0)
	for rows.Next() {
		var contentID string
		if err := rows.Scan(&contentID); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		unlocked = append(unlocked, contentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unlocks: %w", err)
	}
	return unlocked, nil
}
