package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/assignment"
	"courtbook/internal/availability"
	"courtbook/internal/booking"
	"courtbook/internal/config"
	"courtbook/internal/docstore"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/holds"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/notify"
	"courtbook/internal/payments"
	"courtbook/internal/pricing"
	"courtbook/internal/reservation"
	"courtbook/internal/sheets"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	docs, err := docstore.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("open store")
		return err
	}
	defer docs.Close()

	avail, err := availability.New(docs,
		models.OperatingHours{Open: cfg.Booking.OpenTime, Close: cfg.Booking.CloseTime},
		cfg.Booking.GranularityMinutes)
	if err != nil {
		return fmt.Errorf("init availability: %w", err)
	}

	resEngine := reservation.New(docs, avail, 10*time.Second, &logger)
	assignEngine := assignment.New(resEngine, pricing.Rules{
		WeekendDays: cfg.Booking.WeekendDays,
		PeakStart:   cfg.Booking.PeakStart,
		PeakEnd:     cfg.Booking.PeakEnd,
	}, cfg.Booking.GranularityMinutes, &logger)

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	holdRepo := initHolds(redisClient, &logger)
	gateway := initPayments(cfg, &logger)
	bus, busCloser := initEvents(cfg, &logger)
	if busCloser != nil {
		defer busCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := initSheetsSync(ctx, cfg, redisClient, &logger)

	svc := booking.NewService(
		docs, assignEngine, resEngine, avail,
		gateway, holdRepo, bus, syncWorker,
		time.Duration(cfg.Booking.HoldTTLMinutes)*time.Minute,
		&logger,
	)

	initTelegram(cfg, bus, &logger)

	sweeper := worker.NewHoldSweeper(svc,
		time.Duration(cfg.Booking.SweepIntervalSeconds)*time.Second, &logger)
	go sweeper.Run(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, resEngine, cfg.Courts, &logger)
	return serveHTTP(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initHolds prefers Redis so holds survive a restart, falling back to memory
// when Redis is down or absent.
func initHolds(redisClient *redis.Client, logger *zerolog.Logger) domain.HoldRepository {
	memory := holds.NewMemoryHoldRepository()
	if redisClient == nil {
		return memory
	}
	return holds.NewFailoverHoldRepository(holds.NewRedisHoldRepository(redisClient), memory, logger)
}

func initPayments(cfg *config.Config, logger *zerolog.Logger) domain.PaymentGateway {
	if cfg.Payments.SecretKey == "" {
		logger.Warn().Msg("payment keys missing, payments disabled")
		return payments.Disabled{}
	}

	gateway, err := payments.NewOmiseGateway(cfg.Payments.PublicKey, cfg.Payments.SecretKey, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("omise init failed, payments disabled")
		return payments.Disabled{}
	}
	return gateway
}

// initEvents returns the in-process bus, fanned out to AMQP when configured.
func initEvents(cfg *config.Config, logger *zerolog.Logger) (domain.EventPublisher, io.Closer) {
	bus := events.NewBus()
	if cfg.Rabbit.URL == "" {
		return bus, nil
	}

	amqpPub, err := events.NewAMQPPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq connection failed, continuing without amqp")
		return bus, nil
	}

	logger.Info().Str("exchange", cfg.Rabbit.Exchange).Msg("rabbitmq connected")
	return events.Fanout{bus, amqpPub}, amqpPub
}

func initSheetsSync(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SyncWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ScheduleSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := sheets.New(cfg.Google.CredentialsFile, cfg.Google.ScheduleSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	syncWorker := worker.NewSyncWorker(sheetsService, redisClient, worker.RetryPolicy{}, logger)
	go syncWorker.Run(ctx)

	logger.Info().Msg("google sheets sync enabled")
	return syncWorker
}

func initTelegram(cfg *config.Config, bus domain.EventPublisher, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == 0 {
		return
	}

	eventBus, ok := busOf(bus)
	if !ok {
		return
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	notifier.SubscribeTo(eventBus)
	logger.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram notifications enabled")
}

// busOf digs the in-process bus out of a possibly fanned-out publisher.
func busOf(pub domain.EventPublisher) (*events.Bus, bool) {
	switch p := pub.(type) {
	case *events.Bus:
		return p, true
	case events.Fanout:
		for _, inner := range p {
			if bus, ok := inner.(*events.Bus); ok {
				return bus, true
			}
		}
	}
	return nil, false
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serveHTTP(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("booking API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
