package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/api/handlers"
	"github.com/lotledger/ledger_service/internal/api/routes"
	"github.com/lotledger/ledger_service/internal/domain/services/adjustments"
	"github.com/lotledger/ledger_service/internal/domain/services/ledger"
	"github.com/lotledger/ledger_service/internal/domain/services/positions"
	"github.com/lotledger/ledger_service/internal/infrastructure/cache"
	"github.com/lotledger/ledger_service/internal/infrastructure/config"
	"github.com/lotledger/ledger_service/internal/infrastructure/database"
	"github.com/lotledger/ledger_service/internal/infrastructure/repositories"
	"github.com/lotledger/ledger_service/internal/workers"
	"github.com/lotledger/ledger_service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Initialize database
	db, err := database.NewConnection(
		cfg.Database.URL,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetimeDuration(),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := handlers.RegisterValidations(); err != nil {
		log.Fatal("Failed to register request validations", "error", err)
	}

	// Redis backs the read cache only; the service runs without it.
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warnw("Redis unreachable at startup, cache degrades to recomputation", "error", err)
		}
	}
	positionsCache := cache.NewPositionsCache(redisClient, cfg.Cache.TTL(), log)

	// Repositories
	lotRepo := repositories.NewLotRepository(db, log)
	adjustmentRepo := repositories.NewAdjustmentRepository(db, log)
	outcomeRepo := repositories.NewSellOutcomeRepository(db, log)
	feeRepo := repositories.NewFeeRepository(db, log)
	txManager := database.NewTxManager(db)

	// Services
	ledgerSvc := ledger.NewService(lotRepo, outcomeRepo, txManager, log)
	adjustmentSvc := adjustments.NewService(adjustmentRepo, lotRepo, feeRepo, txManager, log)
	positionSvc := positions.NewService(lotRepo, log)

	// Router
	router := routes.SetupRoutes(cfg, log, routes.Handlers{
		Trades:           handlers.NewTradeHandler(ledgerSvc, positionsCache, log),
		CorporateActions: handlers.NewCorporateActionHandler(
			adjustmentSvc,
			positionsCache,
			decimal.NewFromFloat(cfg.Trading.DefaultDividendTaxRate),
			log,
		),
		Positions:        handlers.NewPositionHandler(adjustmentSvc, positionSvc, positionsCache, log),
		Health:           handlers.NewHealthHandler(db, redisClient, log),
	})

	// Scheduled cache refresh
	var refresher *workers.CacheRefresher
	if cfg.Cache.Enabled && cfg.Cache.RefreshEnabled {
		refresher = workers.NewCacheRefresher(lotRepo, adjustmentSvc, positionsCache, cfg.Cache.RefreshCron, log)
		if err := refresher.Start(); err != nil {
			log.Fatal("Failed to start cache refresher", "error", err)
		}
	}

	// HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Infow("Server starting", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	if refresher != nil {
		refresher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", "error", err)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info("Server exited")
}
