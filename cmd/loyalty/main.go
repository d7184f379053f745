package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talx-hub/sky-loyalty/internal/aggregator"
	"github.com/talx-hub/sky-loyalty/internal/api/handlers"
	"github.com/talx-hub/sky-loyalty/internal/config"
	"github.com/talx-hub/sky-loyalty/internal/dbmanager"
	"github.com/talx-hub/sky-loyalty/internal/model"
	"github.com/talx-hub/sky-loyalty/internal/model/loyalty"
	"github.com/talx-hub/sky-loyalty/internal/model/tier"
	"github.com/talx-hub/sky-loyalty/internal/pipeline"
	"github.com/talx-hub/sky-loyalty/internal/repo"
	"github.com/talx-hub/sky-loyalty/internal/repo/memrepo"
	"github.com/talx-hub/sky-loyalty/internal/router"
	"github.com/talx-hub/sky-loyalty/internal/stream"
	"github.com/talx-hub/sky-loyalty/internal/utils/logger"
)

// loyaltyStore is everything the engine needs from a backend: the
// transaction log writes and the conditional aggregate operations.
type loyaltyStore interface {
	Add(ctx context.Context, t *loyalty.Transaction) error
	Revoke(ctx context.Context, customerID, bookingID string) (*loyalty.Transaction, error)
	ListByCustomer(ctx context.Context, customerID string) ([]loyalty.Transaction, error)
	ApplyDelta(ctx context.Context, d *loyalty.AggregateDelta) (loyalty.Outcome, error)
	CustomerTierPoints(ctx context.Context, customerID string) (tier.Tier, int64, error)
}

type pgStore struct {
	*repo.TransactionRepository
	*repo.AggregateRepository
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewBuilder(slog.Default()).
		FromEnv().
		FromFlags().
		GetConfig()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.LogAttrs(context.Background(),
			slog.LevelError,
			"service stopped with error",
			slog.Any(model.KeyLoggerError, err),
		)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	calc := tier.NewCalculator(cfg.TierSilverMin, cfg.TierGoldMin)
	pipe := pipeline.New(
		stream.NewNormalizer(log),
		aggregator.New(calc),
		store,
		log,
	)
	feed := stream.NewFeed(pipe, cfg.BatchSize, cfg.FlushInterval)

	feedDone := make(chan struct{})
	go func() {
		feed.Run(logger.WithContext(ctx, log))
		close(feedDone)
	}()

	// a typed nil manager must not reach the handler's interface field
	health := handlers.NewHealthHandler(nil)
	if db != nil {
		health = handlers.NewHealthHandler(db)
	}

	rr := router.New(cfg, log)
	rr.SetRouter(&struct {
		*handlers.IngestHandler
		*handlers.LoyaltyHandler
		*handlers.HealthHandler
	}{
		IngestHandler: handlers.NewIngestHandler(
			store, feed, log, cfg.PointsExpiry),
		LoyaltyHandler: handlers.NewLoyaltyHandler(store, calc, log),
		HealthHandler:  health,
	})

	srv := &http.Server{
		Addr:    cfg.RunAddr,
		Handler: rr.GetRouter(),
	}
	go func() {
		<-ctx.Done()
		const shutdownTO = 5 * time.Second
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTO)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.LogAttrs(shutdownCtx,
				slog.LevelError,
				"failed to shutdown server gracefully",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()

	log.LogAttrs(ctx,
		slog.LevelInfo,
		"loyalty service is up",
		slog.String("addr", cfg.RunAddr),
	)
	if err := srv.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		stop()
		<-feedDone
		return err
	}

	// let the feed drain its buffer before exiting
	<-feedDone
	return nil
}

// openStore picks the backend: postgres when DATABASE_URI is set, otherwise
// the in-memory store for local runs. A configured but unreachable DB is a
// startup error; no request-level retry can fix it.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger,
) (loyaltyStore, *dbmanager.DBManager, error) {
	if cfg.DatabaseURI == "" {
		log.LogAttrs(ctx,
			slog.LevelWarn,
			"DATABASE_URI is empty, using in-memory store",
		)
		return memrepo.New(log), nil, nil
	}

	const connectTO = 2 * time.Second
	connectCtx, cancel := context.WithTimeout(ctx, connectTO)
	defer cancel()

	db := dbmanager.New(cfg.DatabaseURI, log).
		Connect(connectCtx).
		ApplyMigrations(connectCtx).
		Ping(connectCtx)
	if err := db.Error(); err != nil {
		return nil, nil, err
	}

	pool, err := db.GetPool(ctx)
	if err != nil {
		return nil, nil, err
	}

	return &pgStore{
		TransactionRepository: repo.NewTransactionRepository(pool, log),
		AggregateRepository: repo.NewAggregateRepository(
			pool, log, cfg.StoreTimeout),
	}, db, nil
}
