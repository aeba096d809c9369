package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/marketplace/internal/api"
	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/cache"
	"github.com/xtrntr/marketplace/internal/config"
	"github.com/xtrntr/marketplace/internal/db"
	"github.com/xtrntr/marketplace/internal/events"
	"github.com/xtrntr/marketplace/internal/memstore"
	"github.com/xtrntr/marketplace/internal/orders"
	"github.com/xtrntr/marketplace/internal/stockfeed"
	"github.com/xtrntr/marketplace/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 1024
)

// Main entry point: sets up storage, order services, and the HTTP server
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), nil
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	// Optional view cache
	var viewCache orders.ViewCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		viewCache = cache.New(rdb, cfg.CacheTTL)
		logger.Info("view cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	views := orders.NewViews(s, viewCache, logger)
	hub := stockfeed.NewHub(s, logger)
	coordinator := orders.NewCoordinator(s, logger, views, hub)

	// Optional order events
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, eventBuffer, logger)
		coordinator.Subscribe(events.NewOrderEvents(producer, cfg.ServiceName))
		logger.Info("order events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	authService := auth.NewAuthService(s, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(s, authService, coordinator, views, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, hub, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not closed by Shutdown.
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		if producer != nil {
			err = errors.Join(err, producer.Close(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}
