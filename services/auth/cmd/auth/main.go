package main

import (
	"context"
	"crypto/rsa"
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
	"loanportal/internal/util"
	"loanportal/pkg/session"
	"loanportal/pkg/store"
	"loanportal/services/auth/internal/app"
	"loanportal/services/auth/internal/config"
	"loanportal/services/auth/internal/security"
	"loanportal/services/auth/internal/server"
)

const keyPrefix = "loanportal:auth"

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

	sessionTTL, _ := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	refreshTTL, _ := config.ParseDuration("refreshTTL", cfg.RefreshTTL)
	resetTTL, _ := config.ParseDuration("resetCodeTTL", cfg.ResetCodeTTL)
	jwtLeeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)

	users, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer users.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	signingKey, err := servicetoken.LoadRSAPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		log.Fatalf("failed to load jwt private key: %v", err)
	}
	previousPaths, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse jwt verify public keys: %v", err)
	}
	previous := make(map[string]*rsa.PublicKey, len(previousPaths))
	for kid, path := range previousPaths {
		pub, err := servicetoken.LoadRSAPublicKey(path)
		if err != nil {
			log.Fatalf("failed to load jwt public key %s: %v", kid, err)
		}
		previous[kid] = pub
	}
	issuer, err := session.NewIssuer(signingKey, session.NewRevoker(redisClient, keyPrefix), session.Options{
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		KeyID:        cfg.JWTKeyID,
		TTL:          sessionTTL,
		Leeway:       jwtLeeway,
		PreviousKeys: previous,
	})
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	var portal app.ApplicationClaimer
	if cfg.PortalURL != "" {
		internalKey, err := servicetoken.LoadRSAPrivateKey(cfg.InternalJWTPrivateKeyPath)
		if err != nil {
			log.Fatalf("failed to load internal jwt private key: %v", err)
		}
		signer, err := servicetoken.NewSigner(internalKey, cfg.InternalJWTKeyID, cfg.InternalJWTIssuer, servicetoken.DefaultTTL)
		if err != nil {
			log.Fatalf("failed to init internal jwt signer: %v", err)
		}
		client, err := app.NewPortalClient(cfg.PortalURL, signer, nil)
		if err != nil {
			log.Fatalf("failed to init portal client: %v", err)
		}
		portal = client
	} else {
		logger.Warn("portalURL not set, signups will not claim applications")
	}

	appCore, err := app.New(app.Config{
		Users:   users,
		Tokens:  issuer,
		Refresh: session.NewRefreshStore(redisClient, keyPrefix, refreshTTL),
		Resets:  session.NewResetCodes(redisClient, keyPrefix, resetTTL, cfg.ResetMaxAttempts),
		Portal:  portal,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	limiter := func(scope string, perMinute int) *ratelimit.FixedWindowLimiter {
		l, err := ratelimit.NewFixedWindowLimiter(redisClient, keyPrefix+":ratelimit:"+scope, perMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init %s rate limiter: %v", scope, err)
		}
		return l
	}

	httpServer, err := server.New(server.Config{
		App:     appCore,
		Alerter: security.NewAuditAlerter(redisClient, keyPrefix+":alerts", logger),
		Limiters: server.Limiters{
			Signup:   limiter("signup", cfg.SignupRateLimitPerMinute),
			Login:    limiter("login", cfg.LoginRateLimitPerMinute),
			Refresh:  limiter("refresh", cfg.RefreshRateLimitPerMinute),
			Password: limiter("password", cfg.PasswordRateLimitPerMinute),
		},
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("auth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
