// Package payments verifies store receipts and guards against replayed
// transactions. Coin amounts always come from the package catalog.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/pkg/validate"
)

const DefaultProviderTimeout = 5 * time.Second

type Catalog interface {
	Get(packageID string) (model.CoinPackage, bool)
	List() []model.CoinPackage
}

type Ledger interface {
	Exists(ctx context.Context, transactionID string) (bool, error)
}

type Metrics interface {
	PaymentVerified(platform, outcome string)
}

type Dependencies struct {
	Catalog         Catalog
	Provider        StoreProvider
	Ledger          Ledger
	ProviderTimeout time.Duration
	Logger          *zap.Logger
}

type Service struct {
	catalog         Catalog
	provider        StoreProvider
	ledger          Ledger
	providerTimeout time.Duration
	metrics         Metrics
	logger          *zap.Logger
}

type VerifyInput struct {
	Platform  string
	Receipt   string
	PackageID string
}

type Verification struct {
	TransactionID string
	Platform      enums.Platform
	PackageID     string
	PackageName   string
	Coins         int64
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := deps.Provider
	if provider == nil {
		provider = StubStoreProvider{}
	}
	timeout := deps.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Service{
		catalog:         deps.Catalog,
		provider:        provider,
		ledger:          deps.Ledger,
		providerTimeout: timeout,
		logger:          logger,
	}
}

func (s *Service) AttachMetrics(metrics Metrics) {
	s.metrics = metrics
}

func (s *Service) Packages() []model.CoinPackage {
	if s.catalog == nil {
		return []model.CoinPackage{}
	}
	return s.catalog.List()
}

// Verify resolves the receipt with the store provider and rejects
// transactions already in the ledger. The replay check uses the provider's
// transaction id, never one supplied by the client.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (Verification, error) {
	if s.catalog == nil || s.ledger == nil {
		return Verification{}, failure.Storage(fmt.Errorf("payments dependencies are not configured"))
	}

	pkg, ok := s.catalog.Get(in.PackageID)
	if !ok {
		return Verification{}, s.reject("", failure.New(failure.CodeUnknownPackage, "unknown coin package %q", strings.TrimSpace(in.PackageID)))
	}

	platform := enums.NormalizePlatform(in.Platform)
	if !platform.Supported() {
		return Verification{}, s.reject(string(platform), failure.New(failure.CodeReceiptInvalid, "unsupported platform %q", in.Platform))
	}
	if !validate.Required(in.Receipt) {
		return Verification{}, s.reject(string(platform), failure.New(failure.CodeReceiptInvalid, "receipt is required"))
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	verdict, err := s.provider.VerifyReceipt(verifyCtx, platform, in.Receipt)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Verification{}, s.reject(string(platform), failure.Wrap(failure.CodeProviderTimeout, err, "store did not answer in time"))
		}
		s.logger.Warn("store provider call failed", zap.String("platform", string(platform)), zap.Error(err))
		return Verification{}, s.reject(string(platform), failure.Wrap(failure.CodeProviderRejected, err, "store could not verify the receipt"))
	}
	if !verdict.Valid || verdict.TransactionID == "" {
		reason := verdict.Reason
		if reason == "" {
			reason = "rejected by store"
		}
		return Verification{}, s.reject(string(platform), failure.New(failure.CodeReceiptInvalid, "purchase receipt is not valid: %s", reason))
	}

	exists, err := s.ledger.Exists(ctx, verdict.TransactionID)
	if err != nil {
		s.logger.Error("purchase ledger lookup failed", zap.String("transaction_id", verdict.TransactionID), zap.Error(err))
		return Verification{}, failure.Storage(err)
	}
	if exists {
		s.logger.Warn("replayed purchase receipt", zap.String("transaction_id", verdict.TransactionID))
		return Verification{}, s.reject(string(platform), failure.ErrDuplicateTransaction)
	}

	s.record(string(platform), "ok")
	return Verification{
		TransactionID: verdict.TransactionID,
		Platform:      platform,
		PackageID:     pkg.PackageID,
		PackageName:   pkg.Name,
		Coins:         pkg.Coins,
	}, nil
}

func (s *Service) reject(platform string, err error) error {
	code := failure.CodeOf(err)
	s.record(platform, strings.ToLower(string(code)))
	s.logger.Info("purchase verification rejected",
		zap.String("platform", platform),
		zap.String("code", string(code)),
		zap.String("reason", failure.Reason(err)),
	)
	return err
}

func (s *Service) record(platform, outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentVerified(platform, outcome)
	}
}
