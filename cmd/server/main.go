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

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/ai"
	"github.com/patrickwarner/nest/internal/analytics"
	"github.com/patrickwarner/nest/internal/api"
	"github.com/patrickwarner/nest/internal/auth"
	"github.com/patrickwarner/nest/internal/config"
	"github.com/patrickwarner/nest/internal/db"
	"github.com/patrickwarner/nest/internal/email"
	"github.com/patrickwarner/nest/internal/forecasting"
	"github.com/patrickwarner/nest/internal/geoip"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/push"
	"github.com/patrickwarner/nest/internal/ratelimit"
	"github.com/patrickwarner/nest/internal/realtime"
	"github.com/patrickwarner/nest/internal/reports"
	"github.com/patrickwarner/nest/internal/scheduler"
	"github.com/patrickwarner/nest/internal/storage"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	rdb, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer rdb.Close()

	var recorder analytics.Recorder
	var analyticsSvc *analytics.Analytics
	if cfg.ClickHouseDSN != "" {
		analyticsSvc, err = analytics.InitClickHouse(cfg.ClickHouseDSN, metricsRegistry)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer func() { _ = analyticsSvc.Close() }()
		recorder = analyticsSvc
	}

	var geoSvc *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geoSvc, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geoSvc.Close() }()
	}

	// Identity: Firebase ID tokens first, then locally signed JWTs.
	var verifiers auth.Chain
	var fbApp *firebase.App
	if cfg.FirebaseProjectID != "" || cfg.FirebaseCredentialsFile != "" {
		fbApp, err = auth.NewFirebaseApp(ctx, cfg.FirebaseCredentialsFile, cfg.FirebaseProjectID)
		if err != nil {
			return err
		}
		fv, err := auth.NewFirebaseVerifier(ctx, fbApp)
		if err != nil {
			return err
		}
		verifiers = append(verifiers, fv)
	}
	if cfg.JWTSecret != "" {
		verifiers = append(verifiers, auth.NewJWTVerifier(cfg.JWTSecret))
	}
	if len(verifiers) == 0 {
		logger.Warn("no token verifier configured, every API request will be rejected")
	}

	var pusher push.Pusher
	if fbApp != nil {
		fcm, err := push.NewFCMPusher(ctx, fbApp)
		if err != nil {
			logger.Warn("push notifications disabled", zap.Error(err))
		} else {
			pusher = fcm
		}
	}

	var mail notify.EmailQueue
	mailer, err := email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})
	switch {
	case errors.Is(err, email.ErrDisabled):
		logger.Info("email notifications disabled")
	case err != nil:
		return fmt.Errorf("init smtp: %w", err)
	default:
		queue := email.NewQueue(mailer, cfg.EmailWorkers, cfg.EmailQueueSize, logger, metricsRegistry)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Close(closeCtx); err != nil {
				logger.Warn("email queue not drained", zap.Error(err))
			}
		}()
		mail = queue
	}

	var objects storage.ObjectStore
	gcs, err := storage.NewGCS(ctx, cfg.GCSBucket, cfg.FirebaseCredentialsFile)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.Warn("file storage disabled, uploads will fail")
	case err != nil:
		return fmt.Errorf("init gcs: %w", err)
	default:
		defer func() { _ = gcs.Close() }()
		objects = gcs
	}

	var assistant api.Assistant
	var analyzer reports.ImageAnalyzer
	if cfg.AIEndpoint != "" {
		a := ai.NewAnalyzer(ai.NewClient(cfg.AIEndpoint, cfg.AIModel, cfg.AITimeout, logger, metricsRegistry), logger)
		assistant = a
		analyzer = a
	}

	hub := realtime.NewHub(logger, metricsRegistry)
	emergencyLimiter := ratelimit.NewUserLimiter(ratelimit.ScopeEmergency, ratelimit.Config{
		Capacity:    cfg.EmergencyRateCapacity,
		RefillEvery: cfg.EmergencyRateRefill,
		Enabled:     cfg.EmergencyRateEnabled,
	}, metricsRegistry)
	gateway := realtime.NewGateway(hub, rdb, rdb, pg, emergencyLimiter, logger, nil)
	gateway.TokenSecret = []byte(cfg.SessionSecret)
	gateway.TokenTTL = cfg.SessionTTL

	dispatcher := notify.New(pg, hub, mail, pusher, logger, metricsRegistry, cfg.NotificationTTL)

	svc := reports.New(pg, dispatcher, logger, metricsRegistry)
	svc.UpvoteThreshold = cfg.UpvoteThreshold
	svc.MaxUploadBytes = cfg.MaxUploadBytes
	svc.Objects = objects
	svc.Analyzer = analyzer
	svc.Analytics = recorder
	svc.Events = rdb

	engine := forecasting.NewEngine(pg, dispatcher, logger, metricsRegistry)

	jobs := scheduler.New(logger)
	if err := jobs.Add("generate_predictions", cfg.PredictionSchedule, func(ctx context.Context) error {
		_, err := engine.Generate(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := jobs.Add("sweep_notifications", cfg.NotificationSweepSchedule, func(ctx context.Context) error {
		_, err := dispatcher.SweepExpired(ctx)
		return err
	}); err != nil {
		return err
	}
	jobs.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := jobs.Stop(stopCtx); err != nil {
			logger.Warn("scheduled jobs still running at shutdown", zap.Error(err))
		}
	}()

	srvDeps := api.NewServer(logger, pg, svc, dispatcher, engine, metricsRegistry, cfg)
	srvDeps.Verifier = verifiers
	srvDeps.Sessions = rdb
	srvDeps.Assistant = assistant
	srvDeps.GeoIP = geoSvc
	srvDeps.Realtime = gateway
	srvDeps.UploadLimiter = ratelimit.NewUserLimiter(ratelimit.ScopeUpload, ratelimit.Config{
		Capacity:    cfg.UploadRateCapacity,
		RefillEvery: cfg.UploadRateRefill,
		Enabled:     cfg.UploadRateEnabled,
	}, metricsRegistry)
	srvDeps.Checks["postgres"] = func(ctx context.Context) error { return pg.DB.PingContext(ctx) }
	srvDeps.Checks["redis"] = func(ctx context.Context) error { return rdb.Client.Ping(ctx).Err() }
	if analyticsSvc != nil {
		srvDeps.Checks["clickhouse"] = func(ctx context.Context) error { return analyticsSvc.DB.PingContext(ctx) }
	}

	r := srvDeps.Router()
	// metrics endpoint (includes rate limiting metrics)
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "nest"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("N.E.S.T. server running",
		zap.String("addr", addr),
		zap.String("env", cfg.Env),
		zap.Int("scheduled_jobs", jobs.Len()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
