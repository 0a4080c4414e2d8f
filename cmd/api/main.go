package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fx-liquidity-engine/config"
	httpHandler "fx-liquidity-engine/internal/adapter/http/handler"
	"fx-liquidity-engine/internal/adapter/settlement"
	pgStorage "fx-liquidity-engine/internal/adapter/storage/postgres"
	redisStorage "fx-liquidity-engine/internal/adapter/storage/redis"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/internal/service"
	"fx-liquidity-engine/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FXE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithFile(cfg.Log.Level, cfg.Log.Pretty, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("settlement_provider", cfg.Settlement.Provider).
		Msg("Starting FX Liquidity Engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	if cfg.Migrations.Enabled {
		if err := pgStorage.RunMigrations(cfg.Database.DSN(), cfg.Migrations.Path, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Redis
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	currencyRepo := pgStorage.NewCurrencyRepo(pool)
	rateRepo := pgStorage.NewRateRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	revenueRepo := pgStorage.NewRevenueRepo(pool)
	taskRepo := pgStorage.NewSettlementTaskRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	lockStore := redisStorage.NewLockStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Seed liquidity pools that do not exist yet
	seedSvc := service.NewSeedService(currencyRepo, log)
	if cfg.Engine.SeedFile != "" {
		created, err := seedSvc.ApplyFile(ctx, cfg.Engine.SeedFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("file", cfg.Engine.SeedFile).Msg("Seed file not found, skipping currency seeding")
		case err != nil:
			log.Fatal().Err(err).Msg("Failed to seed currency pools")
		default:
			log.Info().Int("created", created).Msg("Currency pools seeded")
		}
	}

	// Settlement provider is resolved once; a bad identifier stops start-up
	signer := service.NewHMACRequestSigner()
	provider, err := settlement.NewProvider(cfg.Settlement, signer, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure settlement provider")
	}

	// Core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authSvc := service.NewAuthService(cfg.Operator, hashSvc, tokenSvc, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	quoteSvc := service.NewQuoteService(rateRepo, cfg.Engine)
	rateSvc := service.NewRateService(rateRepo, log)
	transferSvc := service.NewTransferService(
		transferRepo,
		currencyRepo,
		revenueRepo,
		taskRepo,
		quoteSvc,
		idempotencyCache,
		transactor,
		log,
	)
	reportingSvc := service.NewReportingService(currencyRepo, revenueRepo)
	rebalanceSvc := service.NewRebalanceService(currencyRepo, transferRepo, rateRepo, transactor, cfg.Engine, log)
	scheduler := service.NewRebalanceScheduler(rebalanceSvc, lockStore, cfg.Rebalance, log)
	worker := service.NewSettlementWorker(taskRepo, transferSvc, provider, cfg.Worker, log)

	// OpenAPI document for /swagger
	openAPISpec, err := os.ReadFile("docs/api/openapi.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
		openAPISpec = nil
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		RateSvc:        rateSvc,
		QuoteSvc:       quoteSvc,
		ReportingSvc:   reportingSvc,
		Rebalancer:     scheduler,
		AuthSvc:        authSvc,
		TokenSvc:       tokenSvc,
		AuditSvc:       auditSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
		OpenAPISpec: openAPISpec,
		CORSOrigins: cfg.Server.CORSOrigins,
		Mode:        cfg.Server.Mode,
		Logger:      log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Engine stopped with error")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Engine exited")
}
