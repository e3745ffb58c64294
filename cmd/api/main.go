package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/app/apiapp"
	"github.com/hualingluo/InteractiveMovie/internal/config"
	"github.com/hualingluo/InteractiveMovie/internal/infra/logger"
)

const (
	defaultConfigPath = "configs/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()
	log = log.Named("monetization-api")

	log.Info("starting monetization api",
		zap.String("config", cfgPath),
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("story_path", cfg.Monetization.StoryPath),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("store_provider", cfg.StoreProvider.Mode),
		zap.Int("coin_packages", len(cfg.Monetization.Packages)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := apiapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create monetization api",
			zap.String("storage_driver", cfg.Storage.Driver),
			zap.String("story_path", cfg.Monetization.StoryPath),
			zap.Error(err),
		)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining requests", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown monetization api", zap.Error(err))
			return
		}
		log.Info("monetization api stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("monetization api server failed", zap.String("addr", cfg.HTTP.Addr), zap.Error(err))
		}
	}
}
