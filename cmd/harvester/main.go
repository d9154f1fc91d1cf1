// Package main wires together the harvester service binary.
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

	"github.com/opencaselaw/harvester/internal/api"
	"github.com/opencaselaw/harvester/internal/clock/system"
	"github.com/opencaselaw/harvester/internal/config"
	collyfetch "github.com/opencaselaw/harvester/internal/fetch/colly"
	"github.com/opencaselaw/harvester/internal/logging"
	"github.com/opencaselaw/harvester/internal/pipeline"
	"github.com/opencaselaw/harvester/internal/store/jsonfile"
	"github.com/opencaselaw/harvester/internal/store/postgres"
	"github.com/opencaselaw/harvester/internal/store/sqlite"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore, err := jsonfile.New(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("init data directory failed", zap.Error(err))
	}

	records, closeStore, err := buildRecordStore(ctx, cfg, fileStore)
	if err != nil {
		logger.Fatal("init record store failed", zap.Error(err))
	}
	defer closeStore()

	fetcher, err := collyfetch.New(collyfetch.Config{
		BaseURL:   cfg.Source.BaseURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Timeout(),
	})
	if err != nil {
		logger.Fatal("init fetcher failed", zap.Error(err))
	}

	board := pipeline.NewStatusBoard()
	events := pipeline.NewEventLog(logger.Named("pipeline"))

	orch, err := pipeline.New(pipeline.Deps{
		Board:     board,
		Events:    events,
		Listings:  fetcher,
		Documents: fetcher,
		Records:   records,
		Bodies:    fileStore,
		Clock:     system.New(),
		Logger:    logger.Named("orchestrator"),
	})
	if err != nil {
		logger.Fatal("init orchestrator failed", zap.Error(err))
	}

	apiServer := api.NewServer(orch, cfg.RunConfig(), logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	orch.RequestStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case <-orch.Done():
	case <-shutdownCtx.Done():
		logger.Warn("run did not stop before shutdown deadline")
	}
	logger.Info("shutdown complete")
}

// buildRecordStore selects the configured record store backend. The jsonfile
// store always exists for document bodies; it doubles as the record store
// for the default backend.
func buildRecordStore(ctx context.Context, cfg config.Config, fileStore *jsonfile.Store) (pipeline.RecordStore, func(), error) {
	switch cfg.Storage.Backend {
	case "jsonfile":
		return fileStore, func() {}, nil
	case "sqlite":
		s, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:   cfg.Storage.PostgresDSN,
			Table: cfg.Storage.PostgresTable,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
