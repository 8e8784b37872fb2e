package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pv/devnet-panel/internal/api"
	"github.com/pv/devnet-panel/internal/collector"
	"github.com/pv/devnet-panel/internal/config"
	"github.com/pv/devnet-panel/internal/docker"
	"github.com/pv/devnet-panel/internal/health"
	"github.com/pv/devnet-panel/internal/logger"
	"github.com/pv/devnet-panel/internal/poller"
	"github.com/pv/devnet-panel/internal/proofserver"
	"github.com/pv/devnet-panel/internal/recording"
	"github.com/pv/devnet-panel/internal/substrate"
	"github.com/pv/devnet-panel/internal/transport"
	"github.com/pv/devnet-panel/internal/wallet"
)

// walletSyncTimeout ограничивает одну синхронизацию кошелька
const walletSyncTimeout = 2 * time.Minute

func main() {
	cfg := config.Parse()

	logger.Init(logger.Options{
		Format: cfg.LogFormat,
		Level:  logger.ParseLevel(cfg.LogLevel),
		File:   cfg.LogFile,
	})

	httpClient := transport.NewClient(cfg.FetchTimeout)

	sources := collector.Sources{
		Node:  substrate.NewClient(cfg.NodeURL, httpClient),
		Proof: proofserver.NewClient(cfg.ProofServerURL, httpClient),
		Health: health.NewChecker(health.Endpoints{
			Node:        cfg.NodeURL,
			Indexer:     cfg.IndexerURL,
			ProofServer: cfg.ProofServerURL,
		}, health.ProbeTimeout(cfg.FetchTimeout)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Docker необязателен: без него панель показывает только бэкенды
	var lifecycle api.Lifecycle
	rt, err := docker.NewRuntime(cfg.ComposeProject, logger.Log)
	if err != nil {
		logger.Warn("Docker unavailable, containers and lifecycle disabled", "error", err)
	} else {
		defer rt.Close()
		sources.Runtime = rt

		project := docker.NewProject(rt)
		project.DetectRunning(ctx)
		lifecycle = project
	}

	coll := collector.New(sources, cfg.FetchTimeout, logger.Log)

	scheduler := poller.NewScheduler()
	if err := applyPolling(scheduler, cfg.Polling); err != nil {
		logger.Error("Invalid polling configuration", "error", err)
		os.Exit(2)
	}

	walletClient := wallet.NewClient(cfg.WalletURL, transport.NewClient(walletSyncTimeout))
	coordinator := wallet.NewCoordinator(walletClient, walletSyncTimeout, nil, logger.Log)

	rec := newRecorder(cfg)
	coll.SetProbeHook(rec.RecordReport)
	if cfg.Record {
		if err := rec.Start(); err != nil {
			logger.Error("Failed to start recording", "error", err)
		}
	}
	defer rec.Stop()

	hub := api.NewHub(api.HubConfig{
		Collector: coll,
		Scheduler: scheduler,
		Lifecycle: lifecycle,
		Wallet:    coordinator,
		Deriver:   walletClient,
		NetworkID: cfg.NetworkID,
		Logger:    logger.Log,
	})
	hub.Start(ctx)

	handlers := api.NewHandlers(hub, rec)
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "addr", "http://localhost"+addr)
		logger.Info("Backends",
			"node", cfg.NodeURL,
			"indexer", cfg.IndexerURL,
			"proofServer", cfg.ProofServerURL,
			"wallet", cfg.WalletURL)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	hub.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	hub.Wait()

	logger.Info("Server stopped")
}

// applyPolling накладывает настройки опроса из конфигурации
func applyPolling(s *poller.Scheduler, entries map[string]config.PollingEntry) error {
	for name, entry := range entries {
		c, err := poller.ParseCategory(name)
		if err != nil {
			return err
		}
		if entry.IntervalMs != 0 {
			if err := s.SetInterval(c, time.Duration(entry.IntervalMs)*time.Millisecond); err != nil {
				return fmt.Errorf("polling %s: %w", name, err)
			}
		}
		if entry.Enabled != nil {
			if err := s.SetEnabled(c, *entry.Enabled); err != nil {
				return fmt.Errorf("polling %s: %w", name, err)
			}
		}
	}
	return nil
}

func newRecorder(cfg *config.Config) *recording.Manager {
	var backend recording.Backend
	switch cfg.Storage {
	case config.StorageSQLite:
		backend = recording.NewSQLiteBackend(cfg.SQLitePath)
		logger.Info("Using SQLite recording storage", "path", cfg.SQLitePath)
	default:
		backend = recording.NewMemoryBackend()
		logger.Info("Using in-memory recording storage")
	}
	return recording.NewManager(backend, cfg.MaxRecords, logger.Log)
}
