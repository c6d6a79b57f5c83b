package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safepaw/internal/api"
	"safepaw/internal/config"
	"safepaw/internal/database"
	"safepaw/internal/domain"
	"safepaw/internal/events"
	fsstore "safepaw/internal/firestore"
	"safepaw/internal/identity"
	"safepaw/internal/logging"
	"safepaw/internal/media"
	"safepaw/internal/metrics"
	"safepaw/internal/payment"
	"safepaw/internal/repository"
	"safepaw/internal/service"
	"safepaw/internal/worker"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// store is what the API needs from a booking backend.
type store interface {
	domain.BookingStore
	domain.CaregiverDirectory
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initFirebase(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	bookingStore, closeStore, err := initStore(ctx, cfg, app, &logger)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := initVerifier(ctx, cfg, app)
	if err != nil {
		return err
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	kv := initKeyValue(redisClient, &logger)

	bus := events.NewEventBus()

	bookings := service.NewBookingService(bookingStore, bookingStore, kv, bus, service.BookingOptions{
		Location:       cfg.Booking.Location(),
		PageSize:       cfg.Booking.PageSize,
		MaxPageSize:    cfg.Booking.MaxPageSize,
		CreateLimit:    cfg.Booking.CreateLimit,
		CreateWindow:   cfg.Booking.CreateWindow,
		IdempotencyTTL: cfg.Booking.IdempotencyTTL,
	}, &logger)

	gateway := payment.NewWompiClient(cfg.Wompi.BaseURL, cfg.Wompi.PublicKey, cfg.Wompi.Timeout, &logger)
	payments := service.NewPaymentService(bookings, gateway, kv, cfg.Wompi.EventsSecret, cfg.Wompi.Currency, &logger)
	if cfg.Wompi.EventsSecret == "" {
		logger.Warn().Msg("wompi.events_secret is empty, every webhook will be rejected")
	}

	if err := startNotifications(ctx, cfg, app, redisClient, bus, &logger); err != nil {
		return err
	}
	publisher, err := startEventBridge(ctx, cfg, bus, &logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	startMetrics(ctx, cfg, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookingStore.Ping, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings:   bookings,
		Payments:   payments,
		Caregivers: service.NewCaregiverService(bookingStore, &logger),
		Media:      initMedia(cfg, &logger),
		Verifier:   verifier,
		Ready:      bookingStore.Ping,
		Location:   cfg.Booking.Location(),
	}, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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
	return cfg, *logging.Component(baseLogger, "api-main"), closer, nil
}

func initFirebase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*firebase.App, error) {
	if !cfg.Firebase.Enabled() {
		return nil, nil
	}

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase: %w", err)
	}
	logger.Info().Str("project_id", cfg.Firebase.ProjectID).Msg("firebase initialised")
	return app, nil
}

func initStore(ctx context.Context, cfg *config.Config, app *firebase.App, logger *zerolog.Logger) (store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init firestore: %w", err)
		}
		return fsstore.NewStore(client, logger), func() { _ = client.Close() }, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, err
		}
		if cfg.Database.Backup.Enabled {
			go database.NewBackupService(db, cfg.Database.Backup, logger).Start(ctx)
		}
		return db, func() { _ = db.Close() }, nil
	}
}

func initVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) (domain.IdentityVerifier, error) {
	if cfg.API.Auth.Mode == config.AuthModeJWT {
		return identity.NewJWTVerifier(cfg.API.Auth.JWTSecret, cfg.API.Auth.JWTIssuer), nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return identity.NewFirebaseVerifier(client), nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := redisClient.Ping(pingCtx).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initKeyValue prefers Redis and degrades to process memory when Redis fails.
func initKeyValue(redisClient *redis.Client, logger *zerolog.Logger) domain.KeyValueStore {
	memory := repository.NewMemoryStore()
	if redisClient == nil {
		logger.Warn().Msg("idempotency and rate limits are process-local")
		return memory
	}
	return repository.NewFailoverStore(repository.NewRedisStore(redisClient), memory, logger)
}

func initMedia(cfg *config.Config, logger *zerolog.Logger) *service.MediaService {
	if !cfg.Cloudinary.Enabled() {
		logger.Warn().Msg("cloudinary is not configured, photo uploads are disabled")
		return service.NewMediaService(nil, nil, logger)
	}

	signer, err := media.NewSigner(cfg.Cloudinary)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudinary signer init failed")
		return service.NewMediaService(nil, nil, logger)
	}
	uploader, err := media.NewUploader(cfg.Cloudinary, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudinary uploader init failed, direct uploads only")
		return service.NewMediaService(signer, nil, logger)
	}
	return service.NewMediaService(signer, uploader, logger)
}

func startNotifications(
	ctx context.Context,
	cfg *config.Config,
	app *firebase.App,
	redisClient *redis.Client,
	bus *events.EventBus,
	logger *zerolog.Logger,
) error {
	if !cfg.Notifications.Enabled {
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("init firebase messaging: %w", err)
	}

	retry := worker.DefaultRetryPolicy(cfg.Notifications.MaxRetries)
	w := worker.NewNotifyWorker(client, redisClient, cfg.Notifications, retry, logger)
	w.Subscribe(bus)
	go w.Start(ctx)
	return nil
}

func startEventBridge(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) (*events.AMQPPublisher, error) {
	if cfg.Events.AMQPURL == "" {
		return nil, nil
	}
	pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.QueueSize, logging.Component(logger, "amqp"))
	if err != nil {
		return nil, fmt.Errorf("init amqp publisher: %w", err)
	}
	events.Bridge(bus, pub)
	go pub.Run(ctx)
	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("booking events forwarded to amqp")
	return pub, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go grpcServer.WatchHealth(ctx, 15*time.Second)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	evt := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		evt = evt.Str("grpc_addr", grpcServer.Addr())
	}
	evt.Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
