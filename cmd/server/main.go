package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/api"
	"erp-sync-service/internal/config"
	"erp-sync-service/internal/database"
	"erp-sync-service/internal/events"
	"erp-sync-service/internal/fingerprint"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

type recordStore interface {
	store.Provider
	Close() error
}

func openStore(ctx context.Context, cfg config.DatabaseConnection) (recordStore, error) {
	if cfg.Type == "memory" {
		return store.NewMemoryStore(), nil
	}

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sqlStore := store.NewSQLStore(db)
	if err := sqlStore.ApplySchema(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}
	return sqlStore, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting ERP Sync Service", zap.String("store", cfg.Store.Type))

	ctx := context.Background()

	// Init record store
	records, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Log.Fatal("Failed to init store", zap.Error(err))
	}
	defer records.Close()

	publisher := events.New(cfg.Events)
	defer publisher.Close()

	engine := sync.NewEngine(
		sync.WithHasher(fingerprint.New(fingerprint.WithLength(cfg.Sync.FingerprintLength))),
		sync.WithPublisher(publisher),
		sync.WithHistoryLimit(cfg.Sync.HistoryLimit),
	)

	// Init Sync Manager
	syncManager, err := sync.NewManager(ctx, cfg, engine, records)
	if err != nil {
		logger.Log.Fatal("Failed to init sync manager", zap.Error(err))
	}
	defer syncManager.Close()

	if cfg.Sync.Realtime {
		if err := syncManager.Start(); err != nil {
			logger.Log.Error("Failed to start realtime feed", zap.Error(err))
		}
	}

	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// Init API
	handler := api.NewHandler(engine, records, syncManager, cfg.Server, cfg.Metrics)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
