// ABOUTME: Main entry point for the radio tuner daemon
// ABOUTME: Loads config and catalog, runs the player control loop and HTTP API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/harper/radio-tuner/internal/application/config"
	"github.com/harper/radio-tuner/internal/application/manager"
	"github.com/harper/radio-tuner/internal/infrastructure/http"
	"github.com/harper/radio-tuner/internal/infrastructure/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	flag.Parse()

	cfg := config.Defaults()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	mgr, err := manager.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	if err := mgr.LoadCatalog(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		mgr.Run(ctx)
	}()

	if cfg.Catalog.Watch {
		go func() {
			if err := mgr.WatchCatalog(ctx); err != nil {
				logger.Warn("catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port)
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           http.NewRouter(mgr, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", "http://"+addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		stop()
		<-loopDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-loopDone

	logger.Info("shutdown complete")
	return nil
}
