package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scriptbridge/internal/config"
	"scriptbridge/internal/handler"
	"scriptbridge/internal/logging"
	"scriptbridge/internal/metrics"
	"scriptbridge/internal/middleware"
	"scriptbridge/internal/migration"
	"scriptbridge/internal/repository"
	"scriptbridge/internal/service"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", os.Getenv("SCRIPTBRIDGE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	// Database setup
	db, err := sql.Open("sqlite", cfg.Server.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	// Run migrations
	if err := migration.Run(db, log); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize repository and services
	queries := repository.New(db)

	registry := config.NewRegistry()
	registry.Replace(cfg.Configs)
	collector := metrics.NewCollector(nil)

	evaluations := service.NewEvaluationService(registry, service.NewSymbolTable(), queries, collector, log)
	if err := evaluations.LoadSymbols(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to load symbols")
	}
	console := service.NewConsole(evaluations, log)

	// Initialize handlers
	evaluateHandler := handler.NewEvaluateHandler(evaluations)
	symbolHandler := handler.NewSymbolHandler(evaluations)
	evaluationHandler := handler.NewEvaluationHandler(evaluations)
	wsHandler := handler.NewWebSocketHandler(console)

	// Setup router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.AccessLog(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.ConfigName)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/evaluate", evaluateHandler.Evaluate)

		// Symbols
		r.Get("/symbols", symbolHandler.List)
		r.Delete("/symbols", symbolHandler.Clear)
		r.Get("/symbols/{name}", symbolHandler.Get)
		r.Put("/symbols/{name}", symbolHandler.Put)
		r.Delete("/symbols/{name}", symbolHandler.Delete)

		// Evaluation history
		r.Get("/evaluations", evaluationHandler.List)
		r.Get("/evaluations/{id}", evaluationHandler.Get)
		r.Delete("/evaluations/{id}", evaluationHandler.Delete)
	})

	r.Get("/ws/console", wsHandler.Console)
	r.Handle("/metrics", collector.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.WatchConfig && *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, 0, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to start config watcher")
		}
		go func() {
			err := watcher.Watch(ctx, func(f *config.File) {
				evaluations.Reconfigure(f.Configs)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Config watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"db":      cfg.Server.DBPath,
		"configs": registry.Names(),
	}).Infof("Server starting on http://localhost:%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Server failed")
	}
	log.Info("Server stopped")
}
