package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/kaleo-api/internal/config"
	"github.com/Brownie44l1/kaleo-api/internal/handlers"
	"github.com/Brownie44l1/kaleo-api/internal/logger"
	"github.com/Brownie44l1/kaleo-api/internal/metrics"
	"github.com/Brownie44l1/kaleo-api/internal/model"
	"github.com/Brownie44l1/kaleo-api/internal/preprocess"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(cfg.Env, os.Stdout))

	procCfg, err := preprocess.LoadConfig(cfg.PreprocessorConfigPath())
	if err != nil {
		return err
	}
	processor, err := preprocess.NewProcessor(procCfg)
	if err != nil {
		return err
	}

	slog.Info("loading model", "path", cfg.ModelPath())

	modelServer, err := model.NewServer(model.Options{
		ModelPath:         cfg.ModelPath(),
		ConfigPath:        cfg.ModelConfigPath(),
		InputName:         cfg.InputName,
		OutputName:        cfg.OutputName,
		SharedLibraryPath: cfg.ORTLibPath,
		Height:            procCfg.Size.Height,
		Width:             procCfg.Size.Width,
	})
	if err != nil {
		return err
	}
	defer modelServer.Close()

	m := metrics.New()
	handler := handlers.NewHandler(modelServer, processor, m, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(handler, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "classes", modelServer.Labels)
		slog.Info("endpoints",
			"home", "GET /",
			"classify", "POST /classify",
			"predict", "POST /predict",
			"health", "GET /health",
			"metrics", "GET /metrics",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
