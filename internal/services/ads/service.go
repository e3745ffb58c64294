// Package ads issues rewarded-ad sessions and verifies that a view was
// really completed before anything is unlocked.
package ads

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

const (
	outcomeOK           = "ok"
	outcomeRateLimited  = "rate_limited"
	outcomeNoAd         = "no_ad"
	outcomeProviderFail = "provider_failure"
)

type SessionTracker interface {
	Create(ctx context.Context, contentID, userID string, platform enums.Platform, adType enums.AdType) (model.AdSession, error)
	Consume(ctx context.Context, trackingID string) (model.AdSession, error)
}

type CompletionLog interface {
	Append(ctx context.Context, completion model.AdCompletion) error
	Stats(ctx context.Context) (model.AdStats, error)
}

type RequestLimiter interface {
	Allow(ctx context.Context, subject string) (int64, bool, error)
}

type Metrics interface {
	AdRequested(platform, outcome string)
	AdVerified(platform, outcome string)
}

type Dependencies struct {
	Sessions        SessionTracker
	Provider        Provider
	Completions     CompletionLog
	Units           *Units
	ProviderTimeout time.Duration
	Logger          *zap.Logger
}

type Service struct {
	sessions        SessionTracker
	provider        Provider
	completions     CompletionLog
	units           *Units
	providerTimeout time.Duration
	limiter         RequestLimiter
	metrics         Metrics
	logger          *zap.Logger
	now             func() time.Time
}

type RequestInput struct {
	ContentID string
	UserID    string
	Platform  string
	AdType    string
}

type Offer struct {
	TrackingID string
	AdID       string
	AdUnitID   string
	AdType     enums.AdType
	Provider   string
	Duration   time.Duration
	RewardType string
}

type VerifyInput struct {
	TrackingID string
	Completed  bool
	ContentID  string
	UserID     string
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := deps.Provider
	if provider == nil {
		provider = StubProvider{}
	}
	units := deps.Units
	if units == nil {
		units = NewUnits(DefaultFallbackDuration)
	}
	timeout := deps.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Service{
		sessions:        deps.Sessions,
		provider:        provider,
		completions:     deps.Completions,
		units:           units,
		providerTimeout: timeout,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *Service) AttachLimiter(limiter RequestLimiter) {
	s.limiter = limiter
}

func (s *Service) AttachMetrics(metrics Metrics) {
	s.metrics = metrics
}

func (s *Service) RequestAd(ctx context.Context, in RequestInput) (Offer, error) {
	contentID := strings.TrimSpace(in.ContentID)
	userID := strings.TrimSpace(in.UserID)
	if contentID == "" || userID == "" {
		return Offer{}, failure.New(failure.CodeValidation, "contentId and userId are required")
	}
	if s.sessions == nil {
		return Offer{}, failure.Storage(fmt.Errorf("ad session tracker is nil"))
	}

	platform := enums.NormalizePlatform(in.Platform)
	adType := enums.NormalizeAdType(in.AdType)
	if adType == "" {
		adType = enums.AdTypeRewarded
	}

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			s.logger.Warn("ad request limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		} else if !allowed {
			s.recordRequest(platform, outcomeRateLimited)
			return Offer{}, failure.New(failure.CodeRateLimited, "too many ad requests, retry in %ds", retryAfter)
		}
	}

	unit, ok := s.units.Lookup(platform, adType)
	if !ok {
		s.recordRequest(platform, outcomeNoAd)
		return Offer{}, failure.New(failure.CodeNoAdAvailable, "no %s ad configured for %s", adType, platform)
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	loaded, err := s.provider.Load(loadCtx, unit)
	cancel()
	if err != nil {
		s.recordRequest(platform, outcomeProviderFail)
		if isTimeout(err) {
			return Offer{}, failure.Wrap(failure.CodeProviderTimeout, err, "ad provider did not answer in time")
		}
		s.logger.Warn("ad load failed", zap.String("ad_unit_id", unit.AdUnitID), zap.Error(err))
		return Offer{}, failure.Wrap(failure.CodeNoAdAvailable, err, "ad failed to load")
	}
	if !loaded.Loaded {
		s.recordRequest(platform, outcomeNoAd)
		return Offer{}, failure.New(failure.CodeNoAdAvailable, "no ad available")
	}

	session, err := s.sessions.Create(ctx, contentID, userID, platform, adType)
	if err != nil {
		return Offer{}, err
	}

	s.recordRequest(platform, outcomeOK)
	s.logger.Info("ad session created",
		zap.String("tracking_id", session.TrackingID),
		zap.String("user_id", userID),
		zap.String("content_id", contentID),
		zap.String("platform", string(platform)),
	)

	return Offer{
		TrackingID: session.TrackingID,
		AdID:       loaded.AdID,
		AdUnitID:   unit.AdUnitID,
		AdType:     adType,
		Provider:   unit.Provider,
		Duration:   unit.MinDuration,
		RewardType: unit.RewardType,
	}, nil
}

// VerifyCompletion consumes the session first, so a tracking id can never be
// verified twice whatever the outcome. The watch-time check runs before the
// client's completion flag is considered.
func (s *Service) VerifyCompletion(ctx context.Context, in VerifyInput) (model.AdCompletion, error) {
	if s.sessions == nil {
		return model.AdCompletion{}, failure.Storage(fmt.Errorf("ad session tracker is nil"))
	}
	if !validate.Required(in.TrackingID) {
		return model.AdCompletion{}, failure.ErrInvalidTracking
	}

	session, err := s.sessions.Consume(ctx, in.TrackingID)
	if err != nil {
		if errors.Is(err, failure.ErrNotFound) {
			return model.AdCompletion{}, s.reject("", failure.ErrInvalidTracking, in.TrackingID)
		}
		return model.AdCompletion{}, err
	}
	platform := string(session.Platform)

	if (in.ContentID != "" && in.ContentID != session.ContentID) || (in.UserID != "" && in.UserID != session.UserID) {
		return model.AdCompletion{}, s.reject(platform,
			failure.New(failure.CodeInvalidTracking, "tracking id does not match this content"), in.TrackingID)
	}

	elapsed := s.now().UTC().Sub(session.StartTime)
	required := s.units.MinDuration(session.Platform, session.AdType)
	if elapsed < required {
		return model.AdCompletion{}, s.reject(platform, failure.New(failure.CodePlaybackTooShort,
			"ad not watched long enough (watched %ds, required %ds)",
			int64(elapsed/time.Second), int64(required/time.Second)), in.TrackingID)
	}

	if !in.Completed {
		return model.AdCompletion{}, s.reject(platform, failure.ErrPlaybackIncomplete, in.TrackingID)
	}

	corroborateCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	verdict, err := s.provider.Corroborate(corroborateCtx, in.TrackingID, session)
	cancel()
	if err != nil {
		if isTimeout(err) {
			return model.AdCompletion{}, s.reject(platform,
				failure.Wrap(failure.CodeProviderTimeout, err, "ad provider did not answer in time"), in.TrackingID)
		}
		return model.AdCompletion{}, s.reject(platform,
			failure.Wrap(failure.CodeProviderRejected, err, "ad provider could not confirm the view"), in.TrackingID)
	}
	if !verdict.Valid {
		reason := verdict.Reason
		if reason == "" {
			reason = "view not confirmed"
		}
		return model.AdCompletion{}, s.reject(platform,
			failure.New(failure.CodeProviderRejected, "ad provider rejected the view: %s", reason), in.TrackingID)
	}

	completion := model.AdCompletion{
		ContentID:   session.ContentID,
		UserID:      session.UserID,
		Platform:    session.Platform,
		AdType:      session.AdType,
		Duration:    elapsed,
		CompletedAt: s.now().UTC(),
	}
	if s.completions != nil {
		if err := s.completions.Append(ctx, completion); err != nil {
			s.logger.Error("ad completion log append failed",
				zap.String("tracking_id", in.TrackingID),
				zap.Error(err),
			)
		}
	}

	s.recordVerification(platform, outcomeOK)
	s.logger.Info("ad view verified",
		zap.String("tracking_id", in.TrackingID),
		zap.String("user_id", session.UserID),
		zap.String("content_id", session.ContentID),
		zap.Duration("watched", elapsed),
	)
	return completion, nil
}

func (s *Service) Stats(ctx context.Context) (model.AdStats, error) {
	if s.completions == nil {
		return model.AdStats{ByPlatform: map[string]int64{}, ByContentID: map[string]int64{}}, nil
	}
	stats, err := s.completions.Stats(ctx)
	if err != nil {
		s.logger.Error("ad stats failed", zap.Error(err))
		return model.AdStats{}, failure.Storage(err)
	}
	return stats, nil
}

func (s *Service) reject(platform string, err error, trackingID string) error {
	code := failure.CodeOf(err)
	s.recordVerification(platform, strings.ToLower(string(code)))
	s.logger.Info("ad verification rejected",
		zap.String("tracking_id", trackingID),
		zap.String("code", string(code)),
		zap.String("reason", failure.Reason(err)),
	)
	return err
}

func (s *Service) recordRequest(platform enums.Platform, outcome string) {
	if s.metrics != nil {
		s.metrics.AdRequested(string(platform), outcome)
	}
}

func (s *Service) recordVerification(platform, outcome string) {
	if s.metrics != nil {
		s.metrics.AdVerified(platform, outcome)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
