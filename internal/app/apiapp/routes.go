package apiapp

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hualingluo/InteractiveMovie/internal/config"
	"github.com/hualingluo/InteractiveMovie/internal/metrics"
	redrepo "github.com/hualingluo/InteractiveMovie/internal/repo/redis"
	adssvc "github.com/hualingluo/InteractiveMovie/internal/services/ads"
	ledgersvc "github.com/hualingluo/InteractiveMovie/internal/services/ledger"
	paymentsvc "github.com/hualingluo/InteractiveMovie/internal/services/payments"
	unlocksvc "github.com/hualingluo/InteractiveMovie/internal/services/unlock"
	"github.com/hualingluo/InteractiveMovie/internal/transport/http/handlers"
)

type Dependencies struct {
	Coordinator    *unlocksvc.Coordinator
	AdsService     *adssvc.Service
	PaymentService *paymentsvc.Service
	LedgerService  *ledgersvc.Service
	Registry       prometheus.Gatherer
	StorageCheck   handlers.HealthCheck
	Redis          *goredis.Client
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	monetizationHandler := handlers.NewMonetizationHandler(deps.Coordinator, deps.PaymentService)
	adminHandler := handlers.NewAdminHandler(deps.Coordinator, deps.AdsService, deps.LedgerService)
	healthHandler := handlers.NewHealthHandler()
	healthHandler.AttachCheck("storage", deps.StorageCheck)
	if deps.Redis != nil {
		client := deps.Redis
		healthHandler.AttachCheck("redis", func(ctx context.Context) error {
			return redrepo.Ping(ctx, client)
		})
	}
	adminMW := AdminTokenMiddleware(deps.Config.Admin.Token, deps.Config.IsProduction(), deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	if deps.Registry != nil {
		r.Handle("/metrics", metrics.Handler(deps.Registry))
	}

	r.Route("/api/monetization", func(r chi.Router) {
		r.Get("/user-info", monetizationHandler.UserInfo)
		r.Post("/check-node", monetizationHandler.CheckNode)
		r.Post("/unlock-coins", monetizationHandler.UnlockWithCoins)
		r.Post("/get-ad", monetizationHandler.RequestAd)
		r.Post("/verify-ad", monetizationHandler.VerifyAd)
		r.Get("/coin-packages", monetizationHandler.CoinPackages)
		r.Post("/purchase-coins", monetizationHandler.PurchaseCoins)
		r.With(adminMW).Post("/add-coins", adminHandler.AddCoins)
		r.With(adminMW).Post("/reset", adminHandler.ResetUser)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminMW)
		r.Get("/ad-stats", adminHandler.AdStats)
		r.Get("/payment-stats", adminHandler.PaymentStats)
		r.Get("/reconciliations", adminHandler.Reconciliations)
		r.Post("/reconciliations/{transactionId}/retry", adminHandler.RetryReconciliation)
	})
}
