// Package unlock decides whether a user may view a story node and turns coin
// spends, ad views and store purchases into persisted entitlements.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/pkg/validate"
	"github.com/hualingluo/InteractiveMovie/internal/services/ads"
	"github.com/hualingluo/InteractiveMovie/internal/services/payments"
)

const (
	MethodCoins = "coins"
	MethodAd    = "ad"

	SourcePurchase       = "purchase"
	SourceReconciliation = "reconciliation"
	SourceAdmin          = "admin"
)

type ContentCatalog interface {
	Monetization(contentID string) (model.ContentMonetization, bool)
}

type Entitlements interface {
	UserInfo(ctx context.Context, userID string) (model.Entitlement, error)
	DebitAndUnlock(ctx context.Context, userID, contentID string, price int64) (model.UnlockResult, error)
	GrantUnlock(ctx context.Context, userID, contentID string) (model.UnlockResult, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	CreditPurchase(ctx context.Context, userID, transactionID string, amount int64) (int64, error)
	Reset(ctx context.Context, userID string) (model.Entitlement, error)
}

type AdVerifier interface {
	RequestAd(ctx context.Context, in ads.RequestInput) (ads.Offer, error)
	VerifyCompletion(ctx context.Context, in ads.VerifyInput) (model.AdCompletion, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, in payments.VerifyInput) (payments.Verification, error)
}

type Ledger interface {
	Append(ctx context.Context, record model.PurchaseRecord) (model.PurchaseRecord, error)
	Get(ctx context.Context, transactionID string) (model.PurchaseRecord, error)
	ListPending(ctx context.Context, limit int) ([]model.PurchaseRecord, error)
}

type Metrics interface {
	ContentUnlocked(method string)
	CoinsCredited(source string, amount int64)
	ReconciliationQueued()
}

type Dependencies struct {
	Catalog      ContentCatalog
	Entitlements Entitlements
	Ads          AdVerifier
	Payments     PaymentVerifier
	Ledger       Ledger
	Logger       *zap.Logger
}

type Coordinator struct {
	catalog      ContentCatalog
	entitlements Entitlements
	ads          AdVerifier
	payments     PaymentVerifier
	ledger       Ledger
	metrics      Metrics
	logger       *zap.Logger
}

type Access struct {
	Allowed      bool
	Reason       string
	Monetization *model.ContentMonetization
}

type AdUnlockInput struct {
	UserID     string
	ContentID  string
	TrackingID string
	Completed  bool
}

type PurchaseInput struct {
	UserID    string
	Platform  string
	Receipt   string
	PackageID string
}

type PurchaseResult struct {
	TransactionID string
	PackageID     string
	PackageName   string
	Coins         int64
	Balance       int64
}

func NewCoordinator(deps Dependencies) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		catalog:      deps.Catalog,
		entitlements: deps.Entitlements,
		ads:          deps.Ads,
		payments:     deps.Payments,
		ledger:       deps.Ledger,
		logger:       logger,
	}
}

func (c *Coordinator) AttachMetrics(metrics Metrics) {
	c.metrics = metrics
}

// CheckAccess allows free nodes, nodes missing from the catalog and nodes the
// user already unlocked. Otherwise it returns what the client needs to offer
// an unlock.
func (c *Coordinator) CheckAccess(ctx context.Context, userID, contentID string) (Access, error) {
	if !validate.Required(contentID) {
		return Access{}, failure.New(failure.CodeValidation, "contentId is required")
	}

	monetization, found := c.lookup(contentID)
	if !found || monetization.Type == enums.MonetizationFree {
		return Access{Allowed: true, Reason: "free content"}, nil
	}

	entitlement, err := c.entitlements.UserInfo(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	if entitlement.HasUnlocked(contentID) {
		return Access{Allowed: true, Reason: "already unlocked"}, nil
	}

	access := Access{Allowed: false, Monetization: &monetization}
	switch monetization.Type {
	case enums.MonetizationPaid:
		access.Reason = fmt.Sprintf("unlock with %d coins, balance %d", monetization.Price, entitlement.Coins)
	case enums.MonetizationAd:
		access.Reason = "watch an ad to unlock"
	}
	return access, nil
}

func (c *Coordinator) UnlockWithCoins(ctx context.Context, userID, contentID string) (model.UnlockResult, error) {
	monetization, found := c.lookup(contentID)
	if !found || monetization.Type != enums.MonetizationPaid {
		return model.UnlockResult{}, failure.ErrNotPaidContent
	}
	if monetization.Price <= 0 {
		c.logger.Warn("paid content without a price", zap.String("content_id", contentID))
		return model.UnlockResult{}, failure.New(failure.CodeNotPaidContent, "price not configured")
	}

	result, err := c.entitlements.DebitAndUnlock(ctx, userID, contentID, monetization.Price)
	if err != nil {
		if errors.Is(err, failure.ErrInsufficientFunds) {
			c.logger.Info("coin unlock refused",
				zap.String("user_id", userID),
				zap.String("content_id", contentID),
				zap.String("code", string(failure.CodeInsufficientFunds)),
			)
		}
		return model.UnlockResult{}, err
	}
	if !result.AlreadyUnlocked {
		c.unlocked(MethodCoins)
	}
	return result, nil
}

// UnlockWithAd grants the node only after the ad view is verified. The
// tracking id is spent by the verification attempt whatever its outcome.
func (c *Coordinator) UnlockWithAd(ctx context.Context, in AdUnlockInput) (model.UnlockResult, error) {
	if !validate.Required(in.UserID) {
		return model.UnlockResult{}, failure.New(failure.CodeValidation, "userId is required")
	}
	monetization, found := c.lookup(in.ContentID)
	if !found || monetization.Type != enums.MonetizationAd {
		return model.UnlockResult{}, failure.ErrNotAdContent
	}
	if c.ads == nil {
		return model.UnlockResult{}, failure.Storage(fmt.Errorf("ad verifier is nil"))
	}

	if _, err := c.ads.VerifyCompletion(ctx, ads.VerifyInput{
		TrackingID: in.TrackingID,
		Completed:  in.Completed,
		ContentID:  in.ContentID,
		UserID:     in.UserID,
	}); err != nil {
		return model.UnlockResult{}, err
	}

	result, err := c.entitlements.GrantUnlock(ctx, in.UserID, in.ContentID)
	if err != nil {
		return model.UnlockResult{}, err
	}
	if !result.AlreadyUnlocked {
		c.unlocked(MethodAd)
	}
	return result, nil
}

func (c *Coordinator) RequestAd(ctx context.Context, in ads.RequestInput) (ads.Offer, error) {
	monetization, found := c.lookup(in.ContentID)
	if !found || monetization.Type != enums.MonetizationAd {
		return ads.Offer{}, failure.ErrNotAdContent
	}
	if c.ads == nil {
		return ads.Offer{}, failure.ErrNoAdAvailable
	}
	return c.ads.RequestAd(ctx, in)
}

// CreditFromPurchase verifies the receipt, records it in the ledger as
// reconcile_pending and then settles it: the coins and the credited status
// commit in one store transaction. If the settle does not commit the record
// stays pending for RetryReconciliation.
func (c *Coordinator) CreditFromPurchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return PurchaseResult{}, failure.New(failure.CodeValidation, "userId is required")
	}
	if c.payments == nil || c.ledger == nil {
		return PurchaseResult{}, failure.Storage(fmt.Errorf("payments dependencies are not configured"))
	}

	verification, err := c.payments.Verify(ctx, payments.VerifyInput{
		Platform:  in.Platform,
		Receipt:   in.Receipt,
		PackageID: in.PackageID,
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	record, err := c.ledger.Append(ctx, model.PurchaseRecord{
		TransactionID: verification.TransactionID,
		UserID:        userID,
		PackageID:     verification.PackageID,
		CoinsGranted:  verification.Coins,
		Platform:      verification.Platform,
		Status:        enums.PurchaseStatusReconcilePending,
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	balance, err := c.entitlements.CreditPurchase(ctx, userID, record.TransactionID, record.CoinsGranted)
	if err != nil {
		if errors.Is(err, failure.ErrDuplicateTransaction) {
			return PurchaseResult{}, err
		}
		c.park(context.WithoutCancel(ctx), record, err)
		return PurchaseResult{}, failure.Wrap(failure.CodeStorage, err,
			"purchase recorded but coins are not credited yet, it will be reconciled")
	}

	c.credited(SourcePurchase, verification.Coins)
	c.logger.Info("purchase credited",
		zap.String("user_id", userID),
		zap.String("transaction_id", record.TransactionID),
		zap.String("package_id", record.PackageID),
		zap.Int64("coins", record.CoinsGranted),
		zap.Int64("balance", balance),
	)

	return PurchaseResult{
		TransactionID: record.TransactionID,
		PackageID:     verification.PackageID,
		PackageName:   verification.PackageName,
		Coins:         verification.Coins,
		Balance:       balance,
	}, nil
}

// RetryReconciliation credits a reconcile_pending record exactly once. The
// status flip and the credit share one store transaction, so concurrent
// retries cannot both credit and a failed retry leaves the record pending.
func (c *Coordinator) RetryReconciliation(ctx context.Context, transactionID string) (PurchaseResult, error) {
	if c.ledger == nil {
		return PurchaseResult{}, failure.Storage(fmt.Errorf("purchase ledger is nil"))
	}
	record, err := c.ledger.Get(ctx, transactionID)
	if err != nil {
		return PurchaseResult{}, err
	}

	if record.Status != enums.PurchaseStatusReconcilePending {
		return PurchaseResult{}, failure.New(failure.CodeDuplicateTransaction, "transaction is not pending reconciliation")
	}

	balance, err := c.entitlements.CreditPurchase(ctx, record.UserID, record.TransactionID, record.CoinsGranted)
	if err != nil {
		if errors.Is(err, failure.ErrDuplicateTransaction) {
			return PurchaseResult{}, failure.New(failure.CodeDuplicateTransaction, "transaction is not pending reconciliation")
		}
		c.park(context.WithoutCancel(ctx), record, err)
		return PurchaseResult{}, failure.Wrap(failure.CodeStorage, err, "reconciliation credit failed, still pending")
	}

	c.credited(SourceReconciliation, record.CoinsGranted)
	c.logger.Info("purchase reconciled",
		zap.String("user_id", record.UserID),
		zap.String("transaction_id", record.TransactionID),
		zap.Int64("coins", record.CoinsGranted),
	)

	return PurchaseResult{
		TransactionID: record.TransactionID,
		PackageID:     record.PackageID,
		Coins:         record.CoinsGranted,
		Balance:       balance,
	}, nil
}

func (c *Coordinator) PendingReconciliations(ctx context.Context, limit int) ([]model.PurchaseRecord, error) {
	if c.ledger == nil {
		return nil, failure.Storage(fmt.Errorf("purchase ledger is nil"))
	}
	return c.ledger.ListPending(ctx, limit)
}

func (c *Coordinator) AddCoins(ctx context.Context, userID string, amount int64) (int64, error) {
	balance, err := c.entitlements.Credit(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	c.credited(SourceAdmin, amount)
	return balance, nil
}

func (c *Coordinator) ResetUser(ctx context.Context, userID string) (model.Entitlement, error) {
	return c.entitlements.Reset(ctx, userID)
}

func (c *Coordinator) UserInfo(ctx context.Context, userID string) (model.Entitlement, error) {
	return c.entitlements.UserInfo(ctx, userID)
}

func (c *Coordinator) lookup(contentID string) (model.ContentMonetization, bool) {
	if c.catalog == nil {
		return model.ContentMonetization{}, false
	}
	return c.catalog.Monetization(strings.TrimSpace(contentID))
}

// park reports a purchase whose credit did not commit. It counts the record
// as queued only when the ledger still holds it as reconcile_pending.
func (c *Coordinator) park(ctx context.Context, record model.PurchaseRecord, creditErr error) {
	current, err := c.ledger.Get(ctx, record.TransactionID)
	if err != nil {
		c.logger.Error("purchase credit failed, ledger state unknown",
			zap.String("user_id", record.UserID),
			zap.String("transaction_id", record.TransactionID),
			zap.Int64("coins", record.CoinsGranted),
			zap.NamedError("credit_error", creditErr),
			zap.Error(err),
		)
		return
	}
	if current.Status != enums.PurchaseStatusReconcilePending {
		c.logger.Warn("purchase credit reported failure but record is already credited",
			zap.String("user_id", record.UserID),
			zap.String("transaction_id", record.TransactionID),
			zap.NamedError("credit_error", creditErr),
		)
		return
	}
	if c.metrics != nil {
		c.metrics.ReconciliationQueued()
	}
	c.logger.Error("purchase credit failed, queued for reconciliation",
		zap.String("user_id", record.UserID),
		zap.String("transaction_id", record.TransactionID),
		zap.Int64("coins", record.CoinsGranted),
		zap.Error(creditErr),
	)
}

func (c *Coordinator) unlocked(method string) {
	if c.metrics != nil {
		c.metrics.ContentUnlocked(method)
	}
}

func (c *Coordinator) credited(source string, amount int64) {
	if c.metrics != nil {
		c.metrics.CoinsCredited(source, amount)
	}
}
