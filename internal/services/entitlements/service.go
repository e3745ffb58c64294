// Package entitlements owns per-user coin balances and unlocked content.
// Mutations for one user are serialized in-process; the store makes each
// mutation atomic and durable before it returns.
package entitlements

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/pkg/validate"
)

type Store interface {
	Get(ctx context.Context, userID string) (model.Entitlement, error)
	DebitAndUnlock(ctx context.Context, userID, contentID string, price int64) (model.UnlockResult, error)
	GrantUnlock(ctx context.Context, userID, contentID string) (model.UnlockResult, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error)
	Reset(ctx context.Context, userID string) (model.Entitlement, error)
}

type Service struct {
	store  Store
	locks  *userLocks
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		locks:  newUserLocks(),
		logger: logger,
	}
}

func (s *Service) UserInfo(ctx context.Context, userID string) (model.Entitlement, error) {
	if err := s.check(userID); err != nil {
		return model.Entitlement{}, err
	}

	entitlement, err := s.store.Get(ctx, userID)
	if err != nil {
		return model.Entitlement{}, s.storageFailure("get entitlement", userID, err)
	}
	return entitlement, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	entitlement, err := s.UserInfo(ctx, userID)
	if err != nil {
		return 0, err
	}
	return entitlement.Coins, nil
}

func (s *Service) GetUnlocked(ctx context.Context, userID string) ([]string, error) {
	entitlement, err := s.UserInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return entitlement.UnlockedContentIDs, nil
}

// DebitAndUnlock spends price coins and unlocks contentID in one step. An
// already unlocked content id is a successful no-op.
func (s *Service) DebitAndUnlock(ctx context.Context, userID, contentID string, price int64) (model.UnlockResult, error) {
	if err := s.check(userID); err != nil {
		return model.UnlockResult{}, err
	}
	if !validate.Required(contentID) {
		return model.UnlockResult{}, failure.New(failure.CodeValidation, "contentId is required")
	}
	if price <= 0 {
		return model.UnlockResult{}, failure.New(failure.CodeNotPaidContent, "price not configured")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	result, err := s.store.DebitAndUnlock(ctx, userID, contentID, price)
	if err != nil {
		if failure.CodeOf(err) != "" {
			return model.UnlockResult{}, err
		}
		return model.UnlockResult{}, s.storageFailure("debit and unlock", userID, err)
	}

	s.logger.Info("content unlocked with coins",
		zap.String("user_id", userID),
		zap.String("content_id", contentID),
		zap.Int64("spent", result.Spent),
		zap.Int64("balance", result.Balance),
		zap.Bool("already_unlocked", result.AlreadyUnlocked),
	)
	return result, nil
}

func (s *Service) GrantUnlock(ctx context.Context, userID, contentID string) (model.UnlockResult, error) {
	if err := s.check(userID); err != nil {
		return model.UnlockResult{}, err
	}
	if !validate.Required(contentID) {
		return model.UnlockResult{}, failure.New(failure.CodeValidation, "contentId is required")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	result, err := s.store.GrantUnlock(ctx, userID, contentID)
	if err != nil {
		return model.UnlockResult{}, s.storageFailure("grant unlock", userID, err)
	}
	return result, nil
}

func (s *Service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, failure.New(failure.CodeValidation, "amount must be positive")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	balance, err := s.store.Credit(ctx, userID, amount)
	if err != nil {
		return 0, s.storageFailure("credit coins", userID, err)
	}
	return balance, nil
}

// CreditPurchase grants the coins of a reconcile_pending ledger record and
// marks it credited in one store transaction. A record that is already
// credited fails with failure.ErrDuplicateTransaction.
func (s *Service) CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}
	if !validate.Required(transactionID) {
		return 0, failure.New(failure.CodeValidation, "transactionId is required")
	}
	if amount <= 0 {
		return 0, failure.New(failure.CodeValidation, "amount must be positive")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	balance, err := s.store.CreditPurchase(ctx, userID, transactionID, amount)
	if err != nil {
		if failure.CodeOf(err) != "" {
			return 0, err
		}
		return 0, s.storageFailure("credit purchase", userID, err)
	}
	return balance, nil
}

func (s *Service) Reset(ctx context.Context, userID string) (model.Entitlement, error) {
	if err := s.check(userID); err != nil {
		return model.Entitlement{}, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	entitlement, err := s.store.Reset(ctx, userID)
	if err != nil {
		return model.Entitlement{}, s.storageFailure("reset user", userID, err)
	}

	s.logger.Warn("user entitlements reset", zap.String("user_id", userID))
	return entitlement, nil
}

func (s *Service) check(userID string) error {
	if !validate.Required(userID) {
		return failure.New(failure.CodeValidation, "userId is required")
	}
	if !validate.MaxLen(userID, validate.MaxIDLength) {
		return failure.New(failure.CodeValidation, "userId is too long")
	}
	if s.store == nil {
		return failure.Storage(fmt.Errorf("entitlement store is nil"))
	}
	return nil
}

func (s *Service) storageFailure(op, userID string, err error) error {
	s.logger.Error("entitlement store failure",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return failure.Storage(err)
}
