package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identitylabs/identity-system/internal/api"
	"github.com/identitylabs/identity-system/internal/core/service"
	"github.com/identitylabs/identity-system/internal/infrastructure/config"
	mongodb "github.com/identitylabs/identity-system/internal/infrastructure/db/mongo"
	redisdb "github.com/identitylabs/identity-system/internal/infrastructure/db/redis"
	"github.com/identitylabs/identity-system/pkg/logger"
)

// @title        Identity System API
// @version      1.0
// @description  Credential verification and bearer-token lifecycle service.
//
// @securityDefinitions.apikey BearerAuth
// @in    header
// @name  Authorization
func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer rdb.Close()

	userRepo := mongodb.NewUserRepository(db)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("user index creation failed")
	}

	// --- Core services ---
	hasher := service.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := service.NewTokenService(
		cfg.Auth.JWTSecret,
		signingMethod(cfg.Auth.JWTAlgorithm),
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)
	throttle := redisdb.NewLoginThrottle(rdb, cfg.Throttle.MaxFailures, cfg.Throttle.Window)
	authService := service.NewAuthService(userRepo, hasher, tokens, throttle, log)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		AuthService: authService,
		Mongo:       db,
		Redis:       rdb,
		Logger:      log,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func signingMethod(name string) *jwt.SigningMethodHMAC {
	switch name {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}
