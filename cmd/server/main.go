package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/alerts"
	"github.com/sudo-init-do/diecasthub/internal/config"
	"github.com/sudo-init-do/diecasthub/internal/db"
	"github.com/sudo-init-do/diecasthub/internal/logging"
	"github.com/sudo-init-do/diecasthub/internal/marketplace"
	"github.com/sudo-init-do/diecasthub/internal/messaging"
	"github.com/sudo-init-do/diecasthub/internal/metrics"
	mware "github.com/sudo-init-do/diecasthub/internal/middleware"
	"github.com/sudo-init-do/diecasthub/internal/outbox"
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

type stores struct {
	pool          *pgxpool.Pool
	trades        trade.Store
	outbox        trade.OutboxStore
	addresses     trade.AddressBook
	notifications alerts.NotificationStore
	directory     alerts.Directory
}

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		products, err := config.LoadSeed(cfg.Store.SeedFile)
		if err != nil {
			return nil, err
		}
		mem := trade.NewMemoryStore()
		for _, p := range products {
			mem.PutProduct(p)
		}
		logger.Warn("using in-memory store; data is lost on restart",
			zap.String("seed", cfg.Store.SeedFile), zap.Int("products", len(products)))
		return &stores{
			trades:        mem,
			outbox:        mem,
			notifications: alerts.NewMemoryNotifications(),
		}, nil
	}

	pool, err := db.Connect(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	ts := db.NewTradeStore(pool)
	return &stores{
		pool:          pool,
		trades:        ts,
		outbox:        ts,
		addresses:     db.NewAddressBook(pool),
		notifications: alerts.NewPgNotifications(pool),
		directory:     alerts.NewPgDirectory(pool),
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	m := metrics.New()

	limits, err := cfg.Trade.Engine()
	if err != nil {
		return err
	}
	opts := []trade.Option{trade.WithObserver(m)}
	if st.addresses != nil {
		opts = append(opts, trade.WithAddressBook(st.addresses))
	}
	engine := trade.NewEngine(st.trades, limits, logger, opts...)

	// Email delivery needs redis and a user directory; without either the
	// notifier still writes in-app notifications.
	var notifierOpts []alerts.NotifierOption
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr}
	if st.directory != nil {
		mailer, err := alerts.NewMailer(cfg)
		if err != nil {
			logger.Warn("email disabled", zap.Error(err))
		} else {
			queue := asynq.NewClient(redisOpt)
			defer queue.Close()
			notifierOpts = append(notifierOpts, alerts.WithEmail(queue, st.directory))

			worker := alerts.NewWorker(redisOpt, mailer, logger)
			if err := worker.Start(); err != nil {
				return err
			}
			defer worker.Shutdown()
		}
	}
	notifier := alerts.NewNotifier(st.notifications, cfg.AppURL, logger, notifierOpts...)
	hub := messaging.NewHub(engine, logger)

	relayOpts := []outbox.Option{
		outbox.WithSinks(notifier, hub),
		outbox.WithObserver(m),
	}
	if cfg.Kafka.Enabled {
		pub := outbox.NewKafkaPublisher(cfg.Kafka, logger)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		relayOpts = append(relayOpts, outbox.WithPublisher(pub))
	}
	relay := outbox.NewRelay(st.outbox, cfg.Outbox.Interval, cfg.Outbox.Batch, logger, relayOpts...)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	e := newServer(cfg, logger, m, st.pool, engine, hub, st.notifications)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.Port), zap.String("store", cfg.Store.Driver))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	<-relayDone
	return nil
}

func newServer(
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	pool *pgxpool.Pool,
	engine *trade.Engine,
	hub *messaging.Hub,
	notifications alerts.NotificationStore,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = mware.NewValidator()

	e.Use(echomw.Recover())
	e.Use(mware.RequestLogger(logger))
	e.Use(m.Middleware())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "diecasthub"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusOK, echo.Map{"status": "ready", "store": "memory"})
		}
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	trades := marketplace.NewHandler(engine, logger)

	e.GET("/trades/:id/ws", hub.TradeWS, mware.JWT(cfg.JWTSecret, mware.AllowQueryToken()))

	api := e.Group("")
	api.Use(mware.JWT(cfg.JWTSecret))
	trades.Register(api)
	alerts.NewHandler(notifications, logger).Register(api)

	admin := e.Group("/admin")
	admin.Use(mware.JWT(cfg.JWTSecret))
	admin.Use(mware.ModeratorGuard)
	trades.RegisterAdmin(admin)

	return e
}
