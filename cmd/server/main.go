package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/lyalik/geo-locator/internal/api"
	"github.com/lyalik/geo-locator/internal/batch"
	"github.com/lyalik/geo-locator/internal/config"
	"github.com/lyalik/geo-locator/internal/database"
	"github.com/lyalik/geo-locator/internal/detect"
	"github.com/lyalik/geo-locator/internal/dispatch"
	"github.com/lyalik/geo-locator/internal/media"
	"github.com/lyalik/geo-locator/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	store, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var results *database.ResultRepo
	if cfg.Database.Path != "" {
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		results = database.NewResultRepo(db)
	} else {
		logger.Warn("no database path configured, results will not be persisted")
	}

	detector := detect.NewClient(cfg.Detector.BaseURL, logger)
	dispatcher := dispatch.NewDispatcher(detector, logger, dispatch.Config{
		ImageTimeout: time.Duration(cfg.Detector.ImageTimeoutSeconds) * time.Second,
		VideoTimeout: time.Duration(cfg.Detector.VideoTimeoutSeconds) * time.Second,
	})

	controller := batch.NewController(dispatcher, store, results, logger)

	app := &api.App{
		Controller:    controller,
		Results:       results,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		DefaultVideo: media.Settings{
			FrameInterval: cfg.Analysis.FrameInterval,
			MaxFrames:     cfg.Analysis.MaxFrames,
		},
		Logger: logger,
	}

	router := api.NewRouter(app)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("server starting",
		"addr", addr,
		"upload_dir", cfg.Storage.UploadDir,
		"detector", cfg.Detector.BaseURL,
	)

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
}
