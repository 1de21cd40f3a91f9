package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/lyalik/geo-locator/internal/batch"
	"github.com/lyalik/geo-locator/internal/detect"
	"github.com/lyalik/geo-locator/internal/dispatch"
	"github.com/lyalik/geo-locator/internal/export"
	"github.com/lyalik/geo-locator/internal/media"
	"github.com/lyalik/geo-locator/internal/storage"
)

func main() {
	var (
		dir           = flag.String("dir", "", "Directory of media files to analyze")
		detectorURL   = flag.String("detector", envOr("DETECTOR_URL", "http://localhost:5000"), "Detection service base URL")
		locationHint  = flag.String("hint", "", "Optional location hint")
		frameInterval = flag.Int("frame-interval", 3, "Video frame sampling interval")
		maxFrames     = flag.Int("max-frames", 10, "Maximum frames to sample per video")
		outPrefix     = flag.String("out", "results", "Output file prefix for export artifacts")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05",
	}))

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Usage: batch-analyze -dir path/to/media [-detector url] [-hint location]")
		os.Exit(1)
	}

	files, err := readDir(*dir)
	if err != nil {
		logger.Error("failed to read input directory", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Error("no files found", "dir", *dir)
		os.Exit(1)
	}

	spoolDir, err := os.MkdirTemp("", "geolocator-spool")
	if err != nil {
		logger.Error("failed to create spool directory", "error", err)
		os.Exit(1)
	}
	defer os.RemoveAll(spoolDir)

	store, err := storage.NewLocalStorage(spoolDir)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	detector := detect.NewClient(*detectorURL, logger)
	dispatcher := dispatch.NewDispatcher(detector, logger, dispatch.Config{})
	controller := batch.NewController(dispatcher, store, nil, logger)

	view, err := controller.CreateBatch(files)
	if err != nil {
		logger.Error("failed to create batch", "error", err)
		os.Exit(1)
	}

	for _, notice := range view.Notices {
		logger.Warn("file excluded", "file", notice.SourceName, "reason", string(notice.Kind))
	}
	if len(view.Items) == 0 {
		logger.Error("nothing to analyze")
		os.Exit(1)
	}

	updates, _ := controller.Updates(view.ID)

	settings := media.Settings{
		LocationHint:  *locationHint,
		FrameInterval: *frameInterval,
		MaxFrames:     *maxFrames,
	}
	if err := controller.StartRun(view.ID, settings); err != nil {
		logger.Error("failed to start run", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	for update := range updates {
		switch update.Type {
		case "progress":
			p := update.Data.(batch.Progress)
			fmt.Printf("progress: %d/%d\n", p.Settled, p.Total)
		case "item_settled":
			item := update.Data.(media.Item)
			if item.State == media.StateFailed {
				fmt.Printf("✗ %s: %s\n", item.SourceName, item.FailureReason)
			} else if item.Result != nil && item.Result.Coordinates != nil {
				fmt.Printf("✓ %s: %.5f, %.5f (confidence %.2f)\n",
					item.SourceName,
					item.Result.Coordinates.Latitude,
					item.Result.Coordinates.Longitude,
					item.Result.Confidence)
			} else {
				fmt.Printf("✓ %s: no coordinates (confidence %.2f)\n",
					item.SourceName, item.Result.Confidence)
			}
		}
	}

	final, _ := controller.GetRun(view.ID)
	if final.Summary != nil {
		fmt.Printf("done in %s: %d succeeded, %d failed\n",
			time.Since(start).Round(time.Second),
			final.Summary.SuccessCount, final.Summary.FailureCount)
	}

	items, _ := controller.Items(view.ID)
	if err := writeExports(items, *outPrefix); err != nil {
		logger.Error("failed to write exports", "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s.json and %s.csv\n", *outPrefix, *outPrefix)
}

func readDir(dir string) ([]batch.UploadedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []batch.UploadedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, batch.UploadedFile{
			SourceName: entry.Name(),
			Data:       data,
		})
	}
	return files, nil
}

func writeExports(items []media.Item, prefix string) error {
	jsonFile, err := os.Create(prefix + ".json")
	if err != nil {
		return err
	}
	defer jsonFile.Close()
	if err := export.WriteJSON(jsonFile, items); err != nil {
		return err
	}

	csvFile, err := os.Create(prefix + ".csv")
	if err != nil {
		return err
	}
	defer csvFile.Close()
	return export.WriteCSV(csvFile, items)
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
