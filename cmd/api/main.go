package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/finanzas/pkg/config"
	"github.com/mcclellann/finanzas/pkg/events"
	"github.com/mcclellann/finanzas/pkg/ledger"
	"github.com/mcclellann/finanzas/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	var opts []ledger.Option
	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
	}

	server := NewServer(storage, logger, opts...)

	jobs, err := scheduleJobs(ctx, cfg, server.ledger, logger)
	if err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Storage, error) {
	switch cfg.DataBackend {
	case config.BackendMongo:
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoTransactions, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Mongo store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(cfg.SQLiteDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return s, nil
	}
}

// scheduleJobs registers the lateness refresh and reconciliation jobs. An
// empty schedule leaves the job out.
func scheduleJobs(ctx context.Context, cfg *config.Config, l *ledger.Ledger, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()

	if cfg.LatenessSchedule != "" {
		_, err := c.AddFunc(cfg.LatenessSchedule, func() {
			logger.Info("Running lateness refresh...")
			if _, err := l.RefreshLateness(ctx); err != nil {
				logger.WithError(err).Error("Lateness refresh failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule lateness refresh: %w", err)
		}
	}

	if cfg.ReconcileSchedule != "" {
		_, err := c.AddFunc(cfg.ReconcileSchedule, func() {
			logger.Info("Running settlement reconciliation...")
			if _, err := l.Reconcile(ctx); err != nil {
				logger.WithError(err).Error("Reconciliation failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule reconciliation: %w", err)
		}
	}

	if len(c.Entries()) == 0 {
		logger.Warn("No background jobs scheduled")
	}
	return c, nil
}
