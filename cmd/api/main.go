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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/venue-seat-reservation/internal/api"
	"github.com/sanosuguru/venue-seat-reservation/internal/api/handler"
	apimiddleware "github.com/sanosuguru/venue-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/venue-seat-reservation/internal/application"
	"github.com/sanosuguru/venue-seat-reservation/internal/config"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	"github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/events"
	"github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/venue-seat-reservation/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// repositories はストレージ種別ごとに差し替わる永続化層
type repositories struct {
	tx           transaction.Manager
	venues       venue.Repository
	performances performance.Repository
	reservations reservation.Repository
	health       []handler.HealthCheck
	close        func() error
}

func main() {
	// .env はローカル開発用。存在しなくてもよい
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(cfg.App.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("アプリケーションが異常終了しました", zap.Error(err))
		os.Exit(1)
	}
	log.Info("サーバーが正常にシャットダウンしました")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.Init()

	repos, err := openRepositories(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repos.close(); err != nil {
			logger.Warn("ストレージのクローズに失敗", zap.Error(err))
		}
	}()

	ledgerOpts := []application.LedgerOption{application.WithMetrics(m)}
	var cache application.AvailabilityCache

	// Redis は任意。接続できなければ DB の排他だけで動作する
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(&redisinfra.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("Redisに接続できないため分散ロックとキャッシュを無効化します", zap.Error(err))
		} else {
			defer func() { _ = client.Close() }()

			availability := redisinfra.NewAvailabilityCache(client)
			cache = availability
			ledgerOpts = append(ledgerOpts,
				application.WithLockManager(redisinfra.NewLockManager(client)),
				application.WithAvailabilityCache(availability),
			)
			repos.health = append(repos.health, handler.HealthCheck{
				Name:  "redis",
				Check: func(ctx context.Context) error { return redisinfra.Ping(ctx, client) },
			})

			if cfg.Events.Enabled {
				publisher, err := newEventPublisher(client, cfg.Events.Topic)
				if err != nil {
					return err
				}
				defer func() { _ = publisher.Close() }()
				ledgerOpts = append(ledgerOpts, application.WithEventPublisher(publisher))
			}
		}
	}

	ledger := application.NewReservationLedger(repos.tx, repos.reservations, application.LedgerConfig{
		LockTimeout: cfg.Reservation.LockTimeout,
		LockTTL:     cfg.Reservation.LockTTL,
		HoldTTL:     cfg.Reservation.HoldTTL,
	}, ledgerOpts...)

	venueService := application.NewVenueService(repos.venues)
	performanceService := application.NewPerformanceService(
		repos.performances, repos.venues, repos.reservations, cache, cfg.Reservation.AvailabilityTTL,
	).WithMetrics(m)
	reservationService := application.NewReservationService(
		ledger, repos.reservations, repos.performances, repos.venues, nil,
	)

	e := newServer(cfg, m, repos.health,
		handler.NewVenueHandler(venueService),
		handler.NewPerformanceHandler(performanceService),
		handler.NewReservationHandler(reservationService),
	)
	cleaner := worker.NewExpiredReservationCleaner(reservationService, cfg.Reservation.CleanupInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("サーバーを起動します", zap.String("addr", addr), zap.String("storage", cfg.App.Storage))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバー起動エラー: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		cleaner.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")
		cleaner.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openRepositories(cfg *config.Config) (*repositories, error) {
	switch cfg.App.Storage {
	case config.StorageMemory:
		store := memory.NewStore(memory.WithLockTimeout(cfg.Reservation.LockTimeout))
		return &repositories{
			tx:           memory.NewTxManager(store),
			venues:       memory.NewVenueRepository(store),
			performances: memory.NewPerformanceRepository(store),
			reservations: memory.NewReservationRepository(store),
			close:        func() error { return nil },
		}, nil

	case config.StoragePostgres:
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &repositories{
			tx:           postgres.NewTxManager(db),
			venues:       postgres.NewVenueRepository(db),
			performances: postgres.NewPerformanceRepository(db),
			reservations: postgres.NewReservationRepository(db, cfg.Reservation.LockTimeout),
			health: []handler.HealthCheck{{
				Name:  "postgres",
				Check: func(ctx context.Context) error { return postgres.Ping(ctx, db) },
			}},
			close: db.Close,
		}, nil
	}
	return nil, fmt.Errorf("不明なストレージ種別です: %s", cfg.App.Storage)
}

func newEventPublisher(client *goredis.Client, topic string) (*events.ReservationPublisher, error) {
	publisher, err := events.NewRedisStreamPublisher(client, events.NewZapLoggerAdapter(logger.Get()))
	if err != nil {
		return nil, err
	}
	return events.NewReservationPublisher(publisher, topic), nil
}

func newServer(
	cfg *config.Config,
	m *metrics.Metrics,
	checks []handler.HealthCheck,
	venues *handler.VenueHandler,
	performances *handler.PerformanceHandler,
	reservations *handler.ReservationHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	apimiddleware.SetupMiddleware(e, m)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), apimiddleware.MetricsBasicAuth(cfg.Metrics))

	v1 := e.Group("/api/v1")
	v1.GET("/health", handler.NewHealthHandler(checks...).Check)
	handler.RegisterRoutes(v1, venues, performances, reservations)
	return e
}
