package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	_ "github.com/noah-isme/account-service/api/swagger"
	"github.com/noah-isme/account-service/internal/handler"
	"github.com/noah-isme/account-service/internal/middleware"
	"github.com/noah-isme/account-service/internal/repository"
	"github.com/noah-isme/account-service/internal/service"
	"github.com/noah-isme/account-service/pkg/cache"
	"github.com/noah-isme/account-service/pkg/config"
	"github.com/noah-isme/account-service/pkg/database"
	"github.com/noah-isme/account-service/pkg/jobs"
	"github.com/noah-isme/account-service/pkg/logger"
	corsmiddleware "github.com/noah-isme/account-service/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/account-service/pkg/middleware/requestid"
	"github.com/noah-isme/account-service/pkg/telemetry"
)

// @title Account Service API
// @version 1.0.0
// @description User accounts, password authentication and JWT session management
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logr.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return err
		}
	}

	metrics := service.NewMetricsService()
	readiness := map[string]handler.Pinger{"database": db}

	var revocations service.RevocationStore
	switch cfg.Revocation.Backend {
	case config.RevocationRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		revocations = repository.NewRedisRevocationRepository(client)
		readiness["redis"] = handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	default:
		revocations = repository.NewRevocationRepository(db)
	}

	hashQueue := jobs.NewQueue("password", jobs.QueueConfig{
		Workers:    cfg.Password.HashWorkers,
		BufferSize: cfg.Password.HashQueueSize,
		Logger:     logr,
		Observe:    metrics.ObserveHashJob,
	})
	hashQueue.Start(ctx)
	defer hashQueue.Stop()

	hasher := service.NewPooledHasher(service.NewPasswordHasher(service.HasherConfig{
		Algorithm:         cfg.Password.Hasher,
		Argon2MemoryKiB:   cfg.Password.Argon2MemoryKiB,
		Argon2Iterations:  cfg.Password.Argon2Iterations,
		Argon2Parallelism: cfg.Password.Argon2Parallelism,
		BcryptCost:        cfg.Password.BcryptCost,
	}), hashQueue)

	var audience string
	if len(cfg.JWT.Audience) > 0 {
		audience = cfg.JWT.Audience[0]
	}
	tokens, err := service.NewTokenService(revocations, service.TokenConfig{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.Expiration,
		RefreshTTL:    cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
		Audience:      audience,
		RotateRefresh: cfg.JWT.RotateRefresh,
		SweepInterval: cfg.Revocation.SweepInterval,
	}, logr, metrics)
	if err != nil {
		return err
	}
	tokens.StartSweeper(ctx)

	validate := service.NewValidator()
	users := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(users, hasher, tokens, validate, logr, metrics, service.PasswordPolicy{
		MinLength:    cfg.Password.MinLength,
		MaxLength:    service.DefaultPasswordPolicy().MaxLength,
		AllowNumeric: cfg.Password.AllowNumeric,
	})
	userSvc := service.NewUserService(users, validate, logr, metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		Users:   handler.NewUserHandler(userSvc),
		Metrics: handler.NewMetricsHandler(metrics, readiness, logr),
	}, middleware.JWT(tokens))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      otelhttp.NewHandler(r, cfg.ServiceName),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "revocation", cfg.Revocation.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
