package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2001-daminho/nexcrypto/libs/health"
	"github.com/2001-daminho/nexcrypto/libs/httpmiddleware"
	"github.com/2001-daminho/nexcrypto/libs/kafka"
	"github.com/2001-daminho/nexcrypto/libs/logging"
	"github.com/2001-daminho/nexcrypto/libs/metrics"
	"github.com/2001-daminho/nexcrypto/libs/trace"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/config"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/handlers"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/ledger"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/market"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/notify"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/rate"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/realtime"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/session"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTP(registry)
	ledgerMetrics := ledger.NewMetrics(registry)
	marketMetrics := market.NewMetrics(registry)
	kafkaMetrics := kafka.NewProducerMetrics(registry)

	ready := health.NewManager(false)

	if err := storage.Migrate(cfg.DB.DSN()); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = connectRedis(cfg)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		ready.AddCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	hub := realtime.NewHub(logger)
	var changes storage.ChangePublisher = hub

	var (
		producer      *kafka.SyncProducer
		consumerGroup *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewSyncProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID}, logger, kafkaMetrics)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		var publisher kafka.Publisher = producer
		if cfg.Kafka.DLQTopic != "" {
			publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.DLQTopic, logger)
		}
		changes = realtime.NewKafkaPublisher(publisher, cfg.Kafka.ChangesTopic)

		// every instance needs every change, so each gets its own group
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, instanceID())
		consumerGroup, err = kafka.NewConsumer(cfg.Kafka.Brokers, groupID, logger,
			kafka.WithDLQ(producer, cfg.Kafka.DLQTopic),
			kafka.WithRetry(3, 200*time.Millisecond),
			kafka.WithNewestOffset(),
		)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumerGroup.Close()
	}

	store := storage.New(pool, changes, logger)
	ready.AddCheck("postgres", store.Ping)

	var fetcher market.Fetcher
	if !cfg.Market.Offline {
		fetcher = market.NewCoinGeckoClient(market.ClientConfig{
			BaseURL:        cfg.Market.BaseURL,
			Timeout:        cfg.Market.Timeout,
			RequestsPerMin: cfg.Market.RequestsPerMinute,
		})
	}
	var snapshots market.SnapshotStore
	if redisClient != nil {
		snapshots = market.NewRedisSnapshotStore(redisClient, "")
	}
	prices := market.NewSource(fetcher, snapshots, cfg.Market.SnapshotTTL, logger, marketMetrics)
	quotes := market.NewQuotePoller(prices, cfg.Market.PerPage, cfg.Market.RefreshInterval, 0, logger)
	go quotes.Run(rootCtx)

	feePolicy, minimumPolicy, err := ledger.PoliciesFromConfig(cfg.Fees)
	if err != nil {
		logger.Error("fee policy invalid", "error", err)
		os.Exit(1)
	}

	inbox := notify.NewInbox(cfg.Session.NotificationsPerUser, logger)
	sessions := session.NewRegistry(rootCtx, func(provider identity.Provider) (*ledger.Engine, error) {
		return ledger.NewEngine(ledger.Options{
			Backend:              store,
			Feed:                 hub,
			Prices:               quotes,
			Identity:             provider,
			FeePolicy:            feePolicy,
			MinimumPolicy:        minimumPolicy,
			Notifier:             inbox,
			Logger:               logger,
			Metrics:              ledgerMetrics,
			PriceRefreshInterval: cfg.Market.RefreshInterval,
		})
	}, cfg.Session.IdleTTL, logger)
	defer sessions.Close()

	var limiter rate.Limiter = rate.NewMemory(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if redisClient != nil {
		limiter = rate.NewRedisLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, cfg.RateLimit.RedisPrefix)
	}

	router := buildRouter(cfg, ready, registry, httpMetrics, logger)
	handlers.New(sessions, inbox, prices, store, limiter, logger).Register(router, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	grpcServer := grpc.NewServer()
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("grpc listen failed", "error", err)
		os.Exit(1)
	}

	ready.SetReady(true)

	go func() {
		logger.Info("wallet grpc health starting", "addr", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
		}
	}()

	go func() {
		logger.Info("wallet http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	if consumerGroup != nil {
		go func() {
			logger.Info("wallet change consumer starting", "topic", cfg.Kafka.ChangesTopic)
			if err := consumerGroup.Consume(rootCtx, []string{cfg.Kafka.ChangesTopic}, realtime.NewConsumerHandler(hub, logger)); err != nil {
				logger.Error("kafka consumer error", "error", err)
			}
		}()
	}

	waitForShutdown(grpcServer, healthServer, httpServer, ready, rootCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func connectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()[:8]
}

func buildRouter(cfg *config.Config, ready *health.Manager, registry *prometheus.Registry, httpMetrics *metrics.HTTP, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger, httpMetrics))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))
	return router
}

func waitForShutdown(grpcServer *grpc.Server, healthServer *grpchealth.Server, httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	cancel()

	grpcDone := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(grpcDone)
	}()
	select {
	case <-grpcDone:
	case <-ctx.Done():
		grpcServer.Stop()
	}
	logger.Info("shutdown complete")
}
