package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/catalog"
	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/eligibility"
	"github.com/Dan9191/scheme-service/internal/flow"
	"github.com/Dan9191/scheme-service/internal/handler"
	"github.com/Dan9191/scheme-service/internal/handoff"
	"github.com/Dan9191/scheme-service/internal/integrations/backend"
	"github.com/Dan9191/scheme-service/internal/integrations/goldrate"
	"github.com/Dan9191/scheme-service/internal/limits"
	"github.com/Dan9191/scheme-service/internal/metrics"
	"github.com/Dan9191/scheme-service/internal/middleware"
	"github.com/Dan9191/scheme-service/internal/payment"
	"github.com/Dan9191/scheme-service/internal/repository"
	"github.com/Dan9191/scheme-service/internal/scheduler"
	"github.com/Dan9191/scheme-service/internal/service"
	"github.com/Dan9191/scheme-service/internal/utils"
	"github.com/Dan9191/scheme-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	sealKey, err := utils.ParseKey(cfg.SealKey)
	if err != nil {
		logger.Fatalf("Invalid seal key: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	backendClient := backend.NewClient(cfg, logger)
	goldClient := goldrate.NewClient(cfg, logger)

	cache := catalog.NewCache(backendClient, cfg.CatalogTTL, logger)
	resolver := limits.NewResolver(backendClient, cache, logger)
	gate := eligibility.NewGate(backendClient, cfg.EligibilityGrace, logger)
	builder := payment.NewBuilder(cfg.HandoffBudgetBytes)
	handoffStore := handoff.NewStore(repo, sealKey, builder, logger)

	engine := flow.NewEngine(flow.Deps{
		Gate:       gate,
		Limits:     resolver,
		Enroller:   backendClient,
		Builder:    builder,
		Initiator:  payment.NewInitiator(backendClient, logger),
		Handoff:    handoffStore,
		Notifier:   email.NewSender(cfg, logger),
		DefaultMax: decimal.NewFromInt(cfg.DefaultMaxAmount),
		Log:        logger,
	})

	svc := service.NewService(service.Deps{
		Catalog:  cache,
		Limits:   resolver,
		Gate:     gate,
		Upstream: backendClient,
		Gold:     goldClient,
		Store:    repo,
		Handoff:  handoffStore,
		Engine:   engine,
	}, cfg, logger)
	h := handler.NewHandler(svc, logger)

	sched, err := scheduler.NewScheduler(cfg, svc, svc, logger)
	if err != nil {
		logger.Fatalf("Failed to configure scheduler: %v", err)
	}

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	// Public routes
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	// Protected routes
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg, logger))
	authRouter.Use(limiter.Handler)
	h.RegisterRoutes(authRouter)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	sched.Start()
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	sched.Stop(ctx)
}
