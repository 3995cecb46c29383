package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickquiz/config"
	"quickquiz/handlers"
	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/middleware"
	"quickquiz/routes"
	"quickquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New("quickquiz", cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	// Initialize database
	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	if err := config.Migrate(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	// Initialize Redis; the quiz cache is optional
	var cache services.QuizCache
	if redisClient := config.InitRedis(cfg); redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unavailable, quiz cache disabled")
			redisClient.Close()
		} else {
			cache = services.NewRedisQuizCache(redisClient, cfg.QuizCacheTTL)
			defer redisClient.Close()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize WebSocket hub
	hub := services.NewHub(m, log)
	go hub.Run()

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, log)
	quizService := services.NewQuizService(db, cache, m, log)
	responseService := services.NewResponseService(db, quizService, hub, m, log)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	quizHandler := handlers.NewQuizHandler(quizService, responseService, log)
	feedHandler := handlers.NewFeedHandler(quizService, hub, cfg.CORSOrigins, log)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		middleware.Metrics(m),
		middleware.CORS(cfg.CORSOrigins),
	)
	routes.SetupRoutes(router, authHandler, quizHandler, feedHandler, authService, m)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
