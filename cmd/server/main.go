// Command server runs the easel entry API.
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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/easel-entry/internal/config"
	"github.com/iliyamo/easel-entry/internal/database"
	"github.com/iliyamo/easel-entry/internal/handler"
	"github.com/iliyamo/easel-entry/internal/logging"
	"github.com/iliyamo/easel-entry/internal/metrics"
	"github.com/iliyamo/easel-entry/internal/middleware"
	"github.com/iliyamo/easel-entry/internal/payment"
	"github.com/iliyamo/easel-entry/internal/queue"
	"github.com/iliyamo/easel-entry/internal/repository"
	"github.com/iliyamo/easel-entry/internal/router"
	"github.com/iliyamo/easel-entry/internal/scheduler"
	"github.com/iliyamo/easel-entry/internal/service"
	"github.com/iliyamo/easel-entry/internal/store/memory"
	"github.com/iliyamo/easel-entry/internal/webhook"
)

// stores bundles the persistence backends selected by STORE_DRIVER.
type stores struct {
	participants service.ParticipantStore
	slots        service.SlotStore
	events       service.EventStore
	ping         func(context.Context) error
	close        func() error
}

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	logger := logging.New(cfg.LokiURL)
	slog.SetDefault(logger)
	metrics.Setup(cfg.MetricsPushURL, cfg.MetricsPushInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	comps := service.NewCompetitions(cfg.Capacity, cfg.CompetitionIDs...)
	if err := comps.Seed(ctx, st.slots); err != nil {
		return err
	}

	verifier, err := webhook.NewVerifier(cfg.YocoWebhookSecret, cfg.WebhookTolerance)
	if err != nil {
		return err
	}

	var publisher service.EntryPublisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, logger)
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.EntryLogPath, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("entry consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Info("RABBITMQ_URL not set, entry events disabled")
	}

	alloc := service.NewAllocator(st.slots, logger)
	provider := payment.NewClient(cfg.YocoAPIURL, cfg.YocoSecretKey, cfg.YocoTimeout, logger)
	entries := service.NewEntryService(st.participants, alloc, st.events, publisher, comps, logger)
	checkout := service.NewCheckoutService(st.participants, alloc, provider, comps, service.CheckoutOptions{
		EntryFeeCents: cfg.EntryFeeCents,
		Currency:      cfg.Currency,
		AppURL:        cfg.AppURL,
	}, logger)
	waitlist := service.NewWaitlistService(st.participants, alloc, comps, logger)

	sweeper, err := scheduler.StartSweeper(waitlist, cfg.PendingTTL, cfg.PendingSweepInterval, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sweeper.Stop() }()

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.RequestLogger(logger))
	router.RegisterRoutes(e, st.ping, metrics.Handler())
	router.RegisterWebhooks(e, handler.NewWebhookHandler(verifier, entries, logger))
	router.RegisterParticipant(e, handler.NewCheckoutHandler(checkout), handler.NewWaitlistHandler(waitlist), cfg.IdPJWTSecret, limit)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "competitions", cfg.CompetitionIDs)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		return stores{
			participants: memory.NewParticipants(),
			slots:        memory.NewSlots(),
			events:       memory.NewEvents(),
			close:        func() error { return nil },
		}, nil
	case "mysql":
		db, err := database.Open(ctx, database.Options{
			User: cfg.DBUser,
			Pass: cfg.DBPass,
			Host: cfg.DBHost,
			Port: cfg.DBPort,
			Name: cfg.DBName,
		})
		if err != nil {
			return stores{}, err
		}
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return stores{}, err
			}
		}
		return stores{
			participants: repository.NewParticipantRepo(db),
			slots:        repository.NewSlotRepo(db),
			events:       repository.NewWebhookEventRepo(db),
			ping:         db.PingContext,
			close:        db.Close,
		}, nil
	}
	return stores{}, errors.New("STORE_DRIVER must be mysql or memory")
}
