package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"studyhub/profiles/internal/config"
	"studyhub/profiles/internal/db"
	profilesgrpc "studyhub/profiles/internal/grpc"
	internalhttp "studyhub/profiles/internal/http"
	"studyhub/profiles/internal/identity"
	"studyhub/profiles/internal/mail"
	"studyhub/profiles/internal/operations"
	"studyhub/profiles/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err != nil {
		fatal(logger, "config load failed", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "config invalid", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			fatal(logger, "db migration failed", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "db connection failed", err)
	}
	defer pool.Close()
	store := repository.NewStore(pool)

	var tokens identity.TokenStore = identity.NewMemoryTokenStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			fatal(logger, "redis ping failed", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", slog.String("error", err.Error()))
			}
		}()
		tokens = identity.NewRedisTokenStore(redisClient)
	} else {
		logger.Warn("REDIS_ADDR not set, one-time tokens are kept in memory")
	}

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.MailFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	provider := identity.NewProvider(store, store, tokens, mailer, identity.Options{
		JWTSecret:                cfg.JWTSecret,
		JWTIssuer:                cfg.JWTIssuer,
		PublicURL:                cfg.PublicURL,
		AccessTokenTTL:           cfg.AccessTokenTTL,
		RefreshTokenTTL:          cfg.RefreshTokenTTL,
		StateTTL:                 cfg.OAuthStateTTL,
		VerificationTTL:          cfg.VerificationTTL,
		RecoveryTTL:              cfg.RecoveryTTL,
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
		MinPasswordLength:        cfg.MinPasswordLength,
	}, logger)
	if cfg.GoogleEnabled() {
		provider.RegisterOAuth("google", identity.NewGoogle(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Timeout:      cfg.OAuthHTTPTimeout,
		}))
	} else {
		logger.Warn("google sign-in disabled, GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET missing")
	}

	auth := operations.NewAuth(provider, store, logger)
	profiles := operations.NewProfiles(store, provider, logger)
	server := internalhttp.NewServer(cfg, auth, profiles, store, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthServer := profilesgrpc.NewHealthServer(logger)
	profilesgrpc.StartHealthProbe(ctx, healthServer, store, cfg.HealthProbeInterval)

	go func() {
		logger.Info("profiles http listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "http server error", err)
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			fatal(logger, "grpc listen error", err)
		}
		logger.Info("profiles grpc health listening", slog.String("addr", cfg.GRPCAddr))
		if err := healthServer.Serve(listener); err != nil {
			fatal(logger, "grpc server error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	healthServer.Stop()
	logger.Info("profiles stopped")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
