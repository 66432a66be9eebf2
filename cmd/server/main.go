package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/logging"
	"github.com/relaymux/relaymux/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default <data_dir>/config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	store, err := credential.NewStore(cfg.DataDir)
	if err != nil {
		log.WithError(err).Error("failed to open account store")
		os.Exit(1)
	}
	creds := credential.NewManager(cfg.OAuth, store)
	n, err := creds.Load()
	if err != nil {
		log.WithError(err).Error("failed to load accounts")
		os.Exit(1)
	}
	log.WithField("accounts", n).Info("account pool loaded")

	resolvedConfigPath := *configPath
	if resolvedConfigPath == "" {
		resolvedConfigPath = filepath.Join(cfg.DataDir, "config.json")
	}

	srv := server.New(server.Options{
		Config:     cfg,
		ConfigPath: resolvedConfigPath,
		Creds:      creds,
	})

	httpServer := &http.Server{
		Addr:    cfg.BindAddr(),
		Handler: srv.Engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot-reload the mutable config subset on file changes.
	go func() {
		err := config.Watch(ctx, resolvedConfigPath, func(fresh *config.Config) {
			cfg.CustomModelMapping = fresh.CustomModelMapping
			cfg.AuthMode = fresh.AuthMode
			cfg.RequestTimeoutSec = fresh.RequestTimeoutSec
			cfg.MaxAccountRetries = fresh.MaxAccountRetries
			cfg.SchedulingEnabled = fresh.SchedulingEnabled
			cfg.SchedulingTTLSec = fresh.SchedulingTTLSec
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("config watcher stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("proxy listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}
}
