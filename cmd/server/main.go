// Command server runs the wizard API on a local HTTP port with in-memory
// sessions and a file-backed configuration slot.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"warehouse-wizard/handler"
	"warehouse-wizard/internal/events"
	"warehouse-wizard/internal/export"
	"warehouse-wizard/internal/integrations/openai"
	"warehouse-wizard/internal/integrations/paramstore"
	"warehouse-wizard/internal/localserver"
	"warehouse-wizard/internal/repository"
	"warehouse-wizard/internal/usecase"
	"warehouse-wizard/internal/visualization"
)

const paramPrefix = "/warehouse-wizard"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}

	logger, closeLog := localserver.SetupLogger(os.Getenv("LOG_FILE"), slog.LevelInfo)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	port := envOr("PORT", "3001")
	dataDir := envOr("DATA_DIR", "data")
	turnTimeout := time.Duration(envInt("TURN_TIMEOUT_SECONDS", 20)) * time.Second

	params, err := paramstore.FromEnv(paramPrefix, os.LookupEnv)
	if err != nil {
		return err
	}
	var opts []openai.Option
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	openaiClient, err := openai.NewClient(params, paramPrefix, opts...)
	if err != nil {
		return err
	}

	configStore, err := repository.NewFileConfig(filepath.Join(dataDir, "warehouse-config.json"))
	if err != nil {
		return err
	}
	sessions := repository.NewMemorySessions()
	artifacts := repository.NewMemoryArtifacts()

	bus := events.NewBus(logger)
	panel := visualization.NewPanel(logger)
	bus.Subscribe("visualization", panel.Listen)

	dialogue, err := usecase.NewDialogue(params, openaiClient, paramPrefix)
	if err != nil {
		return err
	}
	chatService, err := usecase.NewChatService(dialogue, dialogue, sessions, configStore, bus, usecase.DriverOptions{
		TurnTimeout:   turnTimeout,
		MaxMessageLen: envInt("MAX_MESSAGE_LENGTH", 500),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	configService, err := usecase.NewConfigService(configStore)
	if err != nil {
		return err
	}
	exportService, err := usecase.NewExportService(configStore, export.XLSX{}, artifacts)
	if err != nil {
		return err
	}
	h, err := handler.NewHandler(chatService, configService, exportService, panel, logger)
	if err != nil {
		return err
	}

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           localserver.NewRouter(h, origins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3 * turnTimeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "data_dir", dataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
