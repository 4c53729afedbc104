package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/config"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/consumer"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/repository"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/routes"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/internal/services"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/apns"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/logger"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/metrics"
	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting apns service",
		slog.String("app", cfg.AppName),
		slog.String("environment", cfg.APNS.Environment),
		slog.String("auth", cfg.APNS.AuthMethod),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	statusStore := repository.NewStatusStore(db, cfg.StatusTable, cfg.DeliveryTable)
	if err := statusStore.Migrate(ctx); err != nil {
		logr.Error("failed to migrate status tables", slog.Any("error", err))
		os.Exit(1)
	}

	checks := map[string]routes.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	// A nil cache disables token suppression.
	var tokenCache services.TokenCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.RedisURL}
		}
		redisRepo := repository.NewRedisRepository(redis.NewClient(opts), cfg.TokenSuppressTTL)
		defer redisRepo.Close()
		tokenCache = redisRepo
		checks["redis"] = redisRepo.Ping
	}

	auth, tlsConfig, err := cfg.APNS.Authenticator()
	if err != nil {
		logr.Error("failed to configure apns authentication", slog.Any("error", err))
		os.Exit(1)
	}
	transport := apns.NewHTTPTransport(tlsConfig, cfg.ProviderTimeout)
	defer transport.Close()

	metricsCollector := metrics.New()
	processor := services.NewPushProcessor(
		transport,
		auth,
		services.DeliveryConfig{
			BaseURL:       cfg.APNS.BaseURL(),
			DefaultTopic:  cfg.APNS.DefaultTopic,
			RetryLimit:    cfg.APNS.RetryLimit,
			RetryInterval: cfg.APNS.RetryInterval,
		},
		services.NewStatusUpdater(statusStore, logr),
		tokenCache,
		metricsCollector,
		logr,
	)

	httpSrv := startHTTPServer(cfg.HTTPPort, routes.NewRouter(metricsCollector, time.Now(), checks), logr)

	retryCfg := retry.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}
	topology := consumer.Topology{
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		Queue:      cfg.PushQueue,
		DeadLetter: cfg.DeadLetterQueue,
		Prefetch:   cfg.PrefetchCount,
		Workers:    cfg.WorkerCount,
	}

	for ctx.Err() == nil {
		var conn *amqp.Connection
		err := retry.Do(ctx, retryCfg, func() error {
			var dialErr error
			conn, dialErr = amqp.Dial(cfg.RabbitURL)
			return dialErr
		})
		if err != nil {
			if ctx.Err() == nil {
				logr.Error("failed to connect rabbitmq", slog.Any("error", err))
			}
			break
		}

		base := consumer.NewBaseConsumer(conn, topology, logr)
		err = consumer.NewPushConsumer(base, processor, logr, cfg.RetryMaxAttempts).Start(ctx)
		_ = conn.Close()
		if !errors.Is(err, consumer.ErrDeliveriesClosed) {
			if err != nil {
				logr.Error("push consumer exited", slog.Any("error", err))
			}
			break
		}
		logr.Warn("broker closed the channel, reconnecting")
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("apns service stopped")
}

func startHTTPServer(port string, handler http.Handler, logr *slog.Logger) *http.Server {
	if port == "" {
		port = "8083"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
