package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lyalik/geo-locator/internal/batch"
	"github.com/lyalik/geo-locator/internal/database"
	"github.com/lyalik/geo-locator/internal/export"
	"github.com/lyalik/geo-locator/internal/media"
)

// App aggregates the dependencies the HTTP handlers need.
type App struct {
	Controller    *batch.Controller
	Results       *database.ResultRepo
	MaxUploadSize int64
	DefaultVideo  media.Settings
	Logger        *slog.Logger
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// CreateBatchHandler accepts a multipart upload of media files and zip
// containers and registers a pending batch.
func (app *App) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respondError(w, http.StatusBadRequest, "upload too large or malformed")
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		app.respondError(w, http.StatusBadRequest, "no files submitted")
		return
	}

	var files []batch.UploadedFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			app.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s", header.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			app.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s", header.Filename))
			return
		}

		files = append(files, batch.UploadedFile{
			SourceName:  header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	view, err := app.Controller.CreateBatch(files)
	if err != nil {
		app.Logger.Error("batch creation failed", "error", err)
		app.respondError(w, http.StatusInternalServerError, "failed to create batch")
		return
	}

	app.respondJSON(w, http.StatusCreated, view)
}

type startRunRequest struct {
	LocationHint  string `json:"location_hint"`
	FrameInterval int    `json:"frame_interval"`
	MaxFrames     int    `json:"max_frames"`
}

// StartRunHandler begins processing the batch. Missing sampling settings
// fall back to the configured defaults.
func (app *App) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req startRunRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			app.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	settings := media.Settings{
		LocationHint:  req.LocationHint,
		FrameInterval: req.FrameInterval,
		MaxFrames:     req.MaxFrames,
	}
	if settings.FrameInterval <= 0 {
		settings.FrameInterval = app.DefaultVideo.FrameInterval
	}
	if settings.MaxFrames <= 0 {
		settings.MaxFrames = app.DefaultVideo.MaxFrames
	}

	if err := app.Controller.StartRun(id, settings); err != nil {
		app.respondError(w, http.StatusConflict, err.Error())
		return
	}

	view, _ := app.Controller.GetRun(id)
	app.respondJSON(w, http.StatusAccepted, view)
}

func (app *App) BatchStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, exists := app.Controller.GetRun(id)
	if !exists {
		app.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	app.respondJSON(w, http.StatusOK, view)
}

// BatchEventsHandler streams run updates as server-sent events.
func (app *App) BatchEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updates, exists := app.Controller.Updates(id)
	if !exists {
		app.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				app.Logger.Error("failed to marshal update", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

func (app *App) ExportJSONHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	items, exists := app.Controller.Items(id)
	if !exists {
		app.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.json"`, id))
	if err := export.WriteJSON(w, items); err != nil {
		app.Logger.Error("json export failed", "batch", id, "error", err)
	}
}

func (app *App) ExportCSVHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	items, exists := app.Controller.Items(id)
	if !exists {
		app.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="violations-%s.csv"`, id))
	if err := export.WriteCSV(w, items); err != nil {
		app.Logger.Error("csv export failed", "batch", id, "error", err)
	}
}

func (app *App) DeleteBatchHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Controller.DeleteBatch(id); err != nil {
		app.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecentResultsHandler lists persisted analysis results across batches.
func (app *App) RecentResultsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Results == nil {
		app.respondJSON(w, http.StatusOK, []database.StoredResult{})
		return
	}

	results, err := app.Results.ListRecent(r.Context(), 100)
	if err != nil {
		app.Logger.Error("listing results failed", "error", err)
		app.respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []database.StoredResult{}
	}

	app.respondJSON(w, http.StatusOK, results)
}

func (app *App) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("failed to encode response", "error", err)
	}
}

func (app *App) respondError(w http.ResponseWriter, status int, message string) {
	app.respondJSON(w, status, map[string]string{"error": message})
}
