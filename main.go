package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/config"
	"auction-escrow/internal/database"
	"auction-escrow/internal/ledger"
	"auction-escrow/internal/repository"
	"auction-escrow/internal/scheduler"
	"auction-escrow/internal/server"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, healthCheck, closeStore := openStore(ctx, cfg)
	defer closeStore()

	l := ledger.New(store, ledger.StaticPriceOracle{Price: cfg.TokenUSDPrice})
	engine := auction.NewEngine(store, l, auction.Config{
		ListingFee:     cfg.ListingFee,
		PlatformFee:    cfg.PlatformFee,
		FeeSinkAccount: cfg.FeeSinkAccount,
	})

	settlement := scheduler.New(engine, store, scheduler.Config{
		Interval:    cfg.SettlementInterval,
		MaxFailures: cfg.SettlementMaxFailures,
		Workers:     cfg.SettlementWorkers,
		BatchSize:   cfg.SettlementBatchSize,
	})
	stopScheduler := settlement.Start(ctx)

	router := server.SetupRouter(engine, server.RouterConfig{
		AdminAPIKey:       cfg.AdminAPIKey,
		BidRateLimitRPS:   cfg.BidRateLimitRPS,
		BidRateLimitBurst: cfg.BidRateLimitBurst,
		HealthCheck:       healthCheck,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.Addr(), "environment": cfg.Environment})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
	stopScheduler()
}

// openStore returns the Postgres store when DATABASE_URL is set and the in-memory
// store otherwise. The in-memory store is only safe with a single server instance.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(context.Context) error, func()) {
	if cfg.DatabaseURL == "" {
		utils.Warn("DATABASE_URL not set, using in-memory store", nil)
		return repository.NewMemoryRepo(), nil, func() {}
	}

	if err := database.RunMigrationsWithURL(cfg.DatabaseURL); err != nil {
		utils.Fatal("failed to run migrations", map[string]any{"error": err.Error()})
	}

	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		utils.Fatal("failed to connect to database", map[string]any{"error": err.Error()})
	}
	return repository.NewPostgresRepo(db), db.Ping, db.Close
}
