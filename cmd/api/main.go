package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dinewithlocals/backend/internal/config"
	"github.com/dinewithlocals/backend/internal/database"
	"github.com/dinewithlocals/backend/internal/handlers"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/internal/telemetry"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "dinewithlocals-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	m := metrics.Initialize()

	hub := services.NewHub(m)
	deps := &handlers.Deps{
		DB:          db,
		Config:      cfg,
		Hub:         hub,
		Metrics:     m,
		GoogleOAuth: cfg.GoogleOAuth(),
	}

	redisClient, err := services.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		go hub.RunRelay(ctx, services.NewRedisRelay(redisClient), time.Second)
		deps.Cache = services.NewRedisCache(redisClient)
	} else {
		logger.Log.Warn("REDIS_URL not set, running single instance without cache")
	}
	go hub.Run(ctx)

	storage, err := services.NewStorage(services.StorageConfig{
		AWSRegion:    cfg.AWSRegion,
		AWSAccessKey: cfg.AWSAccessKey,
		AWSSecretKey: cfg.AWSSecretKey,
		S3Bucket:     cfg.S3Bucket,
		UploadDir:    cfg.UploadDir,
		BaseURL:      cfg.BaseURL,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	deps.Storage = storage

	mailer, err := services.NewSESMailer(cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.EmailFrom)
	if err != nil {
		logger.Log.Fatal("Failed to initialize mailer", zap.Error(err))
	}
	deps.Mailer = mailer
	deps.Payments = services.NewPaymentGateway(cfg.StripeSecretKey, m)

	notifierOpts := []services.NotifierOption{
		services.WithMailer(mailer),
		services.WithMetrics(m),
		services.WithFrontendURL(cfg.FrontendURL),
	}
	// Push is optional
	pusher, err := services.NewFirebasePusher(ctx, cfg.FirebaseServiceAccountPath)
	if err != nil {
		logger.Log.Warn("Firebase initialization failed", zap.Error(err))
	}
	if pusher != nil {
		notifierOpts = append(notifierOpts, services.WithPusher(pusher))
	}
	notifier := services.NewNotifier(db, hub, notifierOpts...)
	deps.Notifier = notifier

	apiLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(cfg.RateLimitRPS))
	authLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	go apiLimiter.RunCleanup(time.Minute, ctx.Done())
	go authLimiter.RunCleanup(time.Minute, ctx.Done())
	deps.AuthLimiter = authLimiter.Middleware(m)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/ws"})))

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.PrometheusMiddleware(m))
	if tp != nil {
		r.Use(middleware.TracingMiddleware(serviceName))
	}
	r.Use(apiLimiter.Middleware(m))

	if !storage.UsingS3() {
		r.Static("/uploads", storage.LocalDir())
	}

	handlers.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	notifier.Wait()
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
}
