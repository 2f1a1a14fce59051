package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"ledger-service/internal/auth"
	"ledger-service/internal/config"
	hrest "ledger-service/internal/handler/rest"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/internal/usecase"
	"ledger-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// NewLedgerHTTPServer wires the full service and blocks serving HTTP until
// the context is cancelled.
func NewLedgerHTTPServer(ctx context.Context, cfg config.AppConfig) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// --- DB connection ---
	dbpool, err := config.ConnectDB(ctx)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbpool.Close()

	if err := repository.EnsureSchema(ctx, dbpool); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	// --- Redis client ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	defer rdb.Close()

	// --- Kafka writer ---
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	gen := utils.NewAccountNumberGenerator()

	// --- Repositories ---
	accountRepo := repository.NewAccountRepo(dbpool, gen)
	entryRepo := repository.NewEntryRepo(dbpool)
	transferRepo := repository.NewTransferRepo(dbpool)
	roleRepo := repository.NewRoleRepo(dbpool)
	metricsRepo := repository.NewMetricsRepo(dbpool)

	// --- Event publishing + idempotency cache ---
	notifier := pub.NewEventPublisher(rdb, kafkaWriter, logger)
	results := usecase.NewResultCache(rdb, logger)

	// --- Usecases ---
	accountUC := usecase.NewAccountUsecase(accountRepo, entryRepo, transferRepo, logger)
	ledgerUC := usecase.NewLedgerUsecase(accountRepo, entryRepo, notifier, results, logger)
	transferUC := usecase.NewTransferUsecase(accountRepo, entryRepo, transferRepo, gen, notifier, results, logger)

	metrics := usecase.NewMetricsRecorder(accountRepo, entryRepo, transferRepo, metricsRepo, cfg.MetricsInterval, logger)
	metrics.Start()
	defer metrics.Stop()

	// --- HTTP handler ---
	restHandler := hrest.NewLedgerRestHandler(accountUC, ledgerUC, transferUC, metrics, roleRepo)
	authMW := auth.Middleware(roleRepo, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: restHandler.Routes(authMW),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
	}()

	log.Printf("Ledger HTTP server listening on %s", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server failed: %v", err)
	}
}
