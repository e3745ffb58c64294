package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/catalog"
	"github.com/hualingluo/InteractiveMovie/internal/config"
	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
	"github.com/hualingluo/InteractiveMovie/internal/infra/httpclient"
	"github.com/hualingluo/InteractiveMovie/internal/jobs/maintenance"
	"github.com/hualingluo/InteractiveMovie/internal/metrics"
	adssvc "github.com/hualingluo/InteractiveMovie/internal/services/ads"
	"github.com/hualingluo/InteractiveMovie/internal/services/adsessions"
	entsvc "github.com/hualingluo/InteractiveMovie/internal/services/entitlements"
	ledgersvc "github.com/hualingluo/InteractiveMovie/internal/services/ledger"
	paymentsvc "github.com/hualingluo/InteractiveMovie/internal/services/payments"
	ratesvc "github.com/hualingluo/InteractiveMovie/internal/services/rate"
	unlocksvc "github.com/hualingluo/InteractiveMovie/internal/services/unlock"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	scheduler  *maintenance.Scheduler
	durable    durableStores
	redis      *goredis.Client
	httpRouter http.Handler

	stopJobs context.CancelFunc
	jobsDone sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	story, err := catalog.LoadStory(cfg.Monetization.StoryPath)
	if err != nil {
		return nil, fmt.Errorf("load story catalog: %w", err)
	}
	packages, err := catalog.NewPackages(cfg.Monetization.Packages)
	if err != nil {
		return nil, fmt.Errorf("load coin packages: %w", err)
	}

	durable, err := openDurableStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	shared := openSharedStores(ctx, cfg, log)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	entitlementService := entsvc.NewService(durable.entitlements, log)
	ledgerService := ledgersvc.NewService(durable.ledger, cfg.Monetization.PurchaseRetention, log)
	tracker := adsessions.NewTracker(shared.sessions, cfg.Monetization.AdSessionMaxAge, log)

	adsService := adssvc.NewService(adssvc.Dependencies{
		Sessions:        tracker,
		Provider:        adssvc.StubProvider{},
		Completions:     durable.completions,
		Units:           buildAdUnits(cfg.Monetization),
		ProviderTimeout: cfg.Monetization.ProviderTimeout,
		Logger:          log,
	})
	adsService.AttachLimiter(ratesvc.NewAdRequestLimiter(shared.rates, cfg.Monetization.AdRequestsPerMinute))
	adsService.AttachMetrics(collector)

	paymentService := paymentsvc.NewService(paymentsvc.Dependencies{
		Catalog:         packages,
		Provider:        buildStoreProvider(cfg),
		Ledger:          ledgerService,
		ProviderTimeout: cfg.Monetization.ProviderTimeout,
		Logger:          log,
	})
	paymentService.AttachMetrics(collector)

	coordinator := unlocksvc.NewCoordinator(unlocksvc.Dependencies{
		Catalog:      story,
		Entitlements: entitlementService,
		Ads:          adsService,
		Payments:     paymentService,
		Ledger:       ledgerService,
		Logger:       log,
	})
	coordinator.AttachMetrics(collector)

	sweepJob := maintenance.NewAdSessionSweepJob(tracker, log)
	sweepJob.AttachGauge(collector)
	scheduler := maintenance.NewScheduler(0, log)
	scheduler.AttachMetrics(collector)
	scheduler.Add(sweepJob, cfg.Monetization.AdSweepInterval)
	scheduler.Add(maintenance.NewLedgerCompactionJob(ledgerService, log), cfg.Monetization.LedgerCompactionInterval)

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, collector)

	RegisterRoutes(r, Dependencies{
		Coordinator:    coordinator,
		AdsService:     adsService,
		PaymentService: paymentService,
		LedgerService:  ledgerService,
		Registry:       registry,
		StorageCheck:   durable.check,
		Redis:          shared.redis,
		Logger:         log,
		Config:         cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	log.Info("monetization engine configured",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", shared.redis != nil),
		zap.String("store_provider", cfg.StoreProvider.Mode),
		zap.Int("story_nodes", len(story.Nodes)),
		zap.Int("coin_packages", len(packages.List())),
	)

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		scheduler:  scheduler,
		durable:    durable,
		redis:      shared.redis,
		httpRouter: r,
	}, nil
}

// Run serves HTTP and runs the maintenance jobs until Shutdown.
func (a *App) Run() error {
	jobsCtx, cancel := context.WithCancel(context.Background())
	a.stopJobs = cancel
	a.jobsDone.Add(1)
	go func() {
		defer a.jobsDone.Done()
		a.scheduler.Run(jobsCtx)
	}()

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.stopJobs != nil {
		a.stopJobs()
		a.jobsDone.Wait()
	}
	if a.durable.close != nil {
		a.durable.close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

func buildAdUnits(cfg config.MonetizationConfig) *adssvc.Units {
	units := adssvc.NewUnits(cfg.FallbackAdDuration)
	for platform, byType := range cfg.AdUnits {
		for adType, unit := range byType {
			units.Add(enums.NormalizePlatform(platform), enums.NormalizeAdType(adType), model.AdUnit{
				AdUnitID:    unit.AdUnitID,
				Provider:    unit.Provider,
				MinDuration: unit.Duration,
				RewardType:  unit.RewardType,
			})
		}
	}
	return units
}

func buildStoreProvider(cfg config.Config) paymentsvc.StoreProvider {
	if cfg.StoreProvider.Mode != config.StoreProviderHTTP {
		return paymentsvc.StubStoreProvider{}
	}
	return paymentsvc.NewHTTPStoreProvider(httpclient.New(cfg.Monetization.ProviderTimeout), paymentsvc.HTTPStoreProviderConfig{
		Endpoint:      cfg.StoreProvider.Endpoint,
		SharedSecret:  cfg.StoreProvider.SharedSecret,
		Sandbox:       cfg.StoreProvider.SandboxEnabled,
		RatePerSecond: cfg.StoreProvider.RatePerSecond,
		Burst:         cfg.StoreProvider.Burst,
	})
}
