package apiapp

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/config"
	memrepo "github.com/hualingluo/InteractiveMovie/internal/repo/memory"
	pgrepo "github.com/hualingluo/InteractiveMovie/internal/repo/postgres"
	redrepo "github.com/hualingluo/InteractiveMovie/internal/repo/redis"
	sqliterepo "github.com/hualingluo/InteractiveMovie/internal/repo/sqlite"
	adssvc "github.com/hualingluo/InteractiveMovie/internal/services/ads"
	"github.com/hualingluo/InteractiveMovie/internal/services/adsessions"
	entsvc "github.com/hualingluo/InteractiveMovie/internal/services/entitlements"
	ledgersvc "github.com/hualingluo/InteractiveMovie/internal/services/ledger"
	ratesvc "github.com/hualingluo/InteractiveMovie/internal/services/rate"
	"github.com/hualingluo/InteractiveMovie/internal/transport/http/handlers"
)

// durableStores are the stores that must survive a restart.
type durableStores struct {
	entitlements entsvc.Store
	ledger       ledgersvc.Store
	completions  adssvc.CompletionLog
	check        handlers.HealthCheck
	close        func()
}

func openDurableStores(ctx context.Context, cfg config.Config, log *zap.Logger) (durableStores, error) {
	defaultCoins := cfg.Monetization.DefaultCoins

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		if cfg.Postgres.Migrate {
			if err := pgrepo.RunMigrations(cfg.Postgres.DSN); err != nil {
				return durableStores{}, fmt.Errorf("run postgres migrations: %w", err)
			}
		}
		pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return durableStores{}, err
		}
		log.Info("storage ready", zap.String("driver", cfg.Storage.Driver))
		return durableStores{
			entitlements: pgrepo.NewEntitlementRepo(pool, defaultCoins),
			ledger:       pgrepo.NewPurchaseLedgerRepo(pool),
			completions:  pgrepo.NewAdCompletionRepo(pool),
			check:        pool.Ping,
			close:        pool.Close,
		}, nil

	case config.StorageDriverSQLite:
		db, err := sqliterepo.Open(cfg.SQLite.Path)
		if err != nil {
			return durableStores{}, err
		}
		log.Info("storage ready", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.SQLite.Path))
		return durableStores{
			entitlements: sqliterepo.NewEntitlementRepo(db, defaultCoins),
			ledger:       sqliterepo.NewPurchaseLedgerRepo(db),
			completions:  sqliterepo.NewAdCompletionRepo(db),
			check:        db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					log.Warn("close sqlite", zap.Error(err))
				}
			},
		}, nil

	default:
		log.Warn("using in-memory storage, balances and purchases are lost on restart")
		ledger := memrepo.NewPurchaseLedgerRepo()
		entitlements := memrepo.NewEntitlementRepo(defaultCoins)
		entitlements.AttachLedger(ledger)
		return durableStores{
			entitlements: entitlements,
			ledger:       ledger,
			completions:  memrepo.NewAdCompletionRepo(),
			close:        func() {},
		}, nil
	}
}

// sharedStores back the ad session registry and the request limiter. Redis
// lets several API instances share them; otherwise they stay in process.
type sharedStores struct {
	sessions adsessions.Store
	rates    ratesvc.WindowStore
	redis    *goredis.Client
}

func openSharedStores(ctx context.Context, cfg config.Config, log *zap.Logger) sharedStores {
	if cfg.Redis.Enabled {
		client := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redrepo.Ping(ctx, client); err != nil {
			log.Warn("redis init failed, ad sessions stay in process", zap.Error(err))
			_ = client.Close()
		} else {
			return sharedStores{
				sessions: redrepo.NewAdSessionRepo(client, log),
				rates:    redrepo.NewRateRepo(client),
				redis:    client,
			}
		}
	}
	return sharedStores{
		sessions: memrepo.NewAdSessionRepo(),
		rates:    memrepo.NewRateRepo(),
	}
}
