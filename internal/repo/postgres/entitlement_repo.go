package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type EntitlementRepo struct {
	pool         *pgxpool.Pool
	defaultCoins int64
}

func NewEntitlementRepo(pool *pgxpool.Pool, defaultCoins int64) *EntitlementRepo {
	return &EntitlementRepo{pool: pool, defaultCoins: defaultCoins}
}

func (r *EntitlementRepo) Get(ctx context.Context, userID string) (model.Entitlement, error) {
	if err := r.validate(userID); err != nil {
		return model.Entitlement{}, err
	}

	var entitlement model.Entitlement
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		coins, updatedAt, err := r.lockRow(ctx, tx, userID)
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
	if err := r.validate(userID); err != nil {
		return model.UnlockResult{}, err
	}
	if strings.TrimSpace(contentID) == "" || price <= 0 {
		return model.UnlockResult{}, fmt.Errorf("invalid debit payload")
	}

	result := model.UnlockResult{UserID: userID, ContentID: contentID}
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		coins, _, err := r.lockRow(ctx, tx, userID)
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

		if err := tx.QueryRow(ctx, `
UPDATE user_entitlements
SET coins = coins - $2, updated_at = NOW()
WHERE user_id = $1
RETURNING coins
`, userID, price).Scan(&result.Balance); err != nil {
			return fmt.Errorf("debit coins: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO user_unlocks (user_id, content_id, unlocked_at)
VALUES ($1, $2, NOW())
`, userID, contentID); err != nil {
			return fmt.Errorf("insert unlock: %w", err)
		}
		result.Spent = price
		return nil
	})
	if err != nil {
		return model.UnlockResult{}, err
	}

	return result, nil
}

func (r *EntitlementRepo) GrantUnlock(ctx context.Context, userID, contentID string) (model.UnlockResult, error) {
	if err := r.validate(userID); err != nil {
		return model.UnlockResult{}, err
	}
	if strings.TrimSpace(contentID) == "" {
		return model.UnlockResult{}, fmt.Errorf("content id is required")
	}

	result := model.UnlockResult{UserID: userID, ContentID: contentID}
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		coins, _, err := r.lockRow(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = coins

		tag, err := tx.Exec(ctx, `
INSERT INTO user_unlocks (user_id, content_id, unlocked_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id, content_id) DO NOTHING
`, userID, contentID)
		if err != nil {
			return fmt.Errorf("grant unlock: %w", err)
		}
		result.AlreadyUnlocked = tag.RowsAffected() == 0
		return nil
	})
	if err != nil {
		return model.UnlockResult{}, err
	}

	return result, nil
}

func (r *EntitlementRepo) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := r.validate(userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}

	var balance int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO user_entitlements (user_id, coins, created_at, updated_at)
VALUES ($1, $2::bigint + $3::bigint, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	coins = user_entitlements.coins + $3,
	updated_at = NOW()
RETURNING coins
`, userID, r.defaultCoins, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit coins: %w", err)
	}

	return balance, nil
}

// CreditPurchase settles a reconcile_pending purchase: the ledger status flip
// and the balance credit commit together or not at all. A record that is not
// pending fails with failure.ErrDuplicateTransaction.
func (r *EntitlementRepo) CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error) {
	if err := r.validate(userID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(transactionID) == "" || amount <= 0 {
		return 0, fmt.Errorf("invalid purchase credit payload")
	}

	var balance int64
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE purchase_records
SET status = $3, updated_at = NOW()
WHERE transaction_id = $1
  AND user_id = $2
  AND status = $4
`, transactionID, userID, string(enums.PurchaseStatusCredited), string(enums.PurchaseStatusReconcilePending))
		if err != nil {
			return fmt.Errorf("settle purchase record: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return failure.ErrDuplicateTransaction
		}

		if _, _, err := r.lockRow(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
UPDATE user_entitlements
SET coins = coins + $2, updated_at = NOW()
WHERE user_id = $1
RETURNING coins
`, userID, amount).Scan(&balance); err != nil {
			return fmt.Errorf("credit coins: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

func (r *EntitlementRepo) Reset(ctx context.Context, userID string) (model.Entitlement, error) {
	if err := r.validate(userID); err != nil {
		return model.Entitlement{}, err
	}

	entitlement := model.Entitlement{UserID: userID, Coins: r.defaultCoins, UnlockedContentIDs: []string{}}
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
INSERT INTO user_entitlements (user_id, coins, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	coins = EXCLUDED.coins,
	updated_at = NOW()
RETURNING updated_at
`, userID, r.defaultCoins).Scan(&entitlement.UpdatedAt); err != nil {
			return fmt.Errorf("reset coins: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_unlocks WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("reset unlocks: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Entitlement{}, err
	}

	return entitlement, nil
}

func (r *EntitlementRepo) validate(userID string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("invalid user id")
	}
	return nil
}

// lockRow creates the row with the starting balance on first access and holds
// it FOR UPDATE until the surrounding transaction ends.
func (r *EntitlementRepo) lockRow(ctx context.Context, tx pgx.Tx, userID string) (int64, time.Time, error) {
	if _, err := tx.Exec(ctx, `
INSERT INTO user_entitlements (user_id, coins, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (user_id) DO NOTHING
`, userID, r.defaultCoins); err != nil {
		return 0, time.Time{}, fmt.Errorf("ensure entitlement row: %w", err)
	}

	var (
		coins     int64
		updatedAt time.Time
	)
	if err := tx.QueryRow(ctx, `
SELECT coins, updated_at
FROM user_entitlements
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&coins, &updatedAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("lock entitlement row: %w", err)
	}

	return coins, updatedAt.UTC(), nil
}

func hasUnlock(ctx context.Context, tx pgx.Tx, userID, contentID string) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, `
SELECT 1
FROM user_unlocks
WHERE user_id = $1
  AND content_id = $2
LIMIT 1
`, userID, contentID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check unlock: %w", err)
	}
	return true, nil
}

func listUnlocks(ctx context.Context, tx pgx.Tx, userID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
SELECT content_id
FROM user_unlocks
WHERE user_id = $1
ORDER BY unlocked_at ASC, content_id ASC
`, userID)
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
