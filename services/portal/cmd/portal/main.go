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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"loanportal/internal/ratelimit"
	"loanportal/internal/servicetoken"
	"loanportal/internal/usertoken"
	"loanportal/internal/util"
	"loanportal/pkg/queue"
	"loanportal/pkg/realtime"
	"loanportal/pkg/storage"
	"loanportal/pkg/store"
	"loanportal/services/portal/internal/app"
	"loanportal/services/portal/internal/config"
	"loanportal/services/portal/internal/metrics"
	"loanportal/services/portal/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}

	rows, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer rows.Close()

	objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		Region:    cfg.MinioRegion,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("failed to connect redis: %v", err)
	}
	cancelPing()

	cleanup, err := queue.NewRedisCleanupQueue(redisClient, queue.Config{
		Stream:     cfg.CleanupStream,
		MaxRetries: cfg.CleanupMaxRetries,
	}, logger)
	if err != nil {
		log.Fatalf("failed to init cleanup queue: %v", err)
	}

	var broker realtime.Broker
	if cfg.RabbitURL != "" {
		broker, err = realtime.NewRabbitBroker(cfg.RabbitURL, cfg.RabbitExchange, logger)
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
	} else {
		logger.Warn("rabbitURL not set, realtime events stay in this instance")
		broker = realtime.NewLocalBroker()
	}
	defer broker.Close()

	portalMetrics := metrics.New()
	appCore, err := app.New(app.Config{
		Store:            rows,
		Objects:          objects,
		Events:           broker,
		Cleanup:          cleanup,
		Metrics:          portalMetrics,
		Logger:           logger,
		ConsistencyDelay: cfg.ConsistencyDelay(),
		URLRetries:       cfg.SignedURLRetries,
		URLBaseDelay:     cfg.SignedURLBaseDelay(),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}
	internalKeys, err := servicetoken.LoadPublicKeys(cfg.InternalJWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to load internal jwt public keys: %v", err)
	}
	internalVerifier, err := servicetoken.NewVerifier(internalKeys, cfg.InternalJWTAudience, cfg.InternalJWTIssuers, jwtLeeway)
	if err != nil {
		log.Fatalf("failed to init internal jwt verifier: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	uploadLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "loanportal:ratelimit:upload", cfg.UploadRateLimit, config.Window(cfg.UploadRateWindow))
	if err != nil {
		log.Fatalf("failed to init upload rate limiter: %v", err)
	}
	prequalLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "loanportal:ratelimit:prequal", cfg.PrequalRateLimit, config.Window(cfg.PrequalRateWindow))
	if err != nil {
		log.Fatalf("failed to init prequal rate limiter: %v", err)
	}

	hub := realtime.NewHub(cfg.AllowedOrigins, logger)
	go func() {
		if err := hub.Run(ctx, broker); err != nil && ctx.Err() == nil {
			logger.Error("realtime hub stopped", "err", err)
		}
	}()
	cleanup.Start(ctx, cfg.CleanupConcurrency, appCore.CleanupHandler())
	reminders, err := appCore.StartReminders(ctx, cfg.ReminderSchedule)
	if err != nil {
		log.Fatalf("failed to schedule reminders: %v", err)
	}
	defer reminders.Stop()

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Tokens:         tokenVerifier,
		Internal:       internalVerifier,
		Hub:            hub,
		Metrics:        portalMetrics,
		UploadLimiter:  uploadLimiter,
		PrequalLimiter: prequalLimiter,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("portal server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
