package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ndemidova/callline/internal/api"
	"github.com/ndemidova/callline/internal/audit"
	"github.com/ndemidova/callline/internal/config"
	"github.com/ndemidova/callline/internal/notify"
	"github.com/ndemidova/callline/internal/planner"
	"github.com/ndemidova/callline/internal/service"
	"github.com/ndemidova/callline/internal/store"
)

func main() {
	cfg := config.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	st, err := store.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		logger.Fatalw("redis connection failed", "error", err)
	}
	defer st.Close()
	logger.Info("connected to redis")

	db, err := sql.Open("sqlite", cfg.AuditDBPath)
	if err != nil {
		logger.Fatalw("audit db open failed", "error", err)
	}
	defer db.Close()

	recorder, err := audit.NewRecorder(db)
	if err != nil {
		logger.Fatalw("audit schema failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter := notify.NewEmitter(st, logger)
	dispatcher := notify.NewDispatcher(st, notify.NewLogTransport(logger), cfg.NotifyWorkers, logger)
	dispatcher.Start(ctx)

	pl := planner.NewOpenAI(planner.Config{
		APIKey:  cfg.PlannerAPIKey,
		Model:   cfg.PlannerModel,
		BaseURL: cfg.PlannerBaseURL,
	})

	createSvc := service.NewCreateService(st, pl, emitter, recorder, logger).
		WithPlannerTimeout(cfg.PlannerTimeout)
	querySvc := service.NewQueryService(st)
	ingestor := service.NewIngestor(st, emitter, recorder, logger)
	sweeper := service.NewSweeper(st, ingestor, cfg.StaleSessionAge, logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() { sweeper.Sweep(ctx) }); err != nil {
		logger.Fatalw("invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
	}
	scheduler.Start()

	handler := api.NewHandler(createSvc, querySvc, ingestor, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("server shutdown error", "error", err)
	}

	dispatcher.Stop()
	logger.Info("server stopped")
}
