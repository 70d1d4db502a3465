package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/api/handler"
	"github.com/farmlog/activity-reservation/internal/api/router"
	"github.com/farmlog/activity-reservation/internal/application"
	"github.com/farmlog/activity-reservation/internal/config"
	"github.com/farmlog/activity-reservation/internal/infrastructure/postgres"
	"github.com/farmlog/activity-reservation/internal/infrastructure/rabbitmq"
	redisinfra "github.com/farmlog/activity-reservation/internal/infrastructure/redis"
	"github.com/farmlog/activity-reservation/internal/pkg/clock"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
	"github.com/farmlog/activity-reservation/internal/pkg/metrics"
	"github.com/farmlog/activity-reservation/internal/worker"
)

func main() {
	cfg := config.Load()

	logger.Set(logger.NewLogger(cfg.Server.Env))
	defer func() { _ = logger.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET が設定されていません")
	}

	m := metrics.Init()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}

	// Redis は任意。接続できなければロックとキャッシュなしで起動する
	var (
		redisClient *goredis.Client
		lockManager redisinfra.LockManagerInterface
		cache       redisinfra.AvailabilityCacheInterface
	)
	redisClient, err = redisinfra.NewClient(redisinfra.ConfigFrom(&cfg.Redis))
	if err != nil {
		logger.Warn("Redisに接続できません。ロックとキャッシュを無効にして起動します", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		lockManager = redisinfra.NewLockManager(redisClient, m)
		cache = redisinfra.NewAvailabilityCache(redisClient)
	}

	clk := clock.NewSystem()
	reservationRepo := postgres.NewReservationRepository(db)
	activityRepo := postgres.NewActivityRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	reservationService := application.NewReservationService(
		postgres.NewTxManager(db),
		reservationRepo,
		activityRepo,
		postgres.NewCapacityLedger(m),
		outboxRepo,
		lockManager,
		cache,
		clk,
		application.WithMetrics(m),
		application.WithListLimit(cfg.Booking.ListLimit),
	)
	activityService := application.NewActivityService(activityRepo, cache, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// バックグラウンドワーカー
	if cfg.Worker.CleanerEnabled {
		cleaner := worker.NewStaleReservationCleaner(reservationService, cfg.Worker.CleanerInterval)
		go cleaner.Start(ctx)
		defer cleaner.Stop()
	}

	if cfg.Broker.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logger.Fatal("RabbitMQ接続エラー", zap.Error(err))
		}
		defer publisher.Close()
		relay := worker.NewOutboxRelay(outboxRepo, publisher, m, cfg.Worker.OutboxInterval, cfg.Worker.OutboxBatchSize)
		go relay.Start(ctx)
	} else {
		logger.Info("RABBITMQ_URL が未設定のためイベントは送信されません（outbox_events に蓄積）")
	}

	healthChecks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, redisClient) }
	}

	e := router.New(router.Config{
		JWTSecret:       cfg.Auth.JWTSecret,
		MetricsUser:     cfg.Metrics.User,
		MetricsPassword: cfg.Metrics.Password,
		Metrics:         m,
		Reservations:    reservationService,
		Activities:      activityService,
		HealthChecks:    healthChecks,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	go func() {
		logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	cancel()

	logger.Info("サーバーが正常にシャットダウンしました")
}
