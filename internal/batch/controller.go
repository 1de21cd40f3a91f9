// Package batch owns the ordered worklist of media items and drives it
// through analysis. Items are processed strictly sequentially: the next
// pending item starts only after the current one settles, keeping
// backpressure on the detection service and making progress deterministic
// for a given input order.
package batch

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lyalik/geo-locator/internal/archive"
	"github.com/lyalik/geo-locator/internal/classify"
	"github.com/lyalik/geo-locator/internal/database"
	"github.com/lyalik/geo-locator/internal/media"
	"github.com/lyalik/geo-locator/internal/storage"
)

// ItemDispatcher sends one item to the remote analysis operation selected
// by its kind.
type ItemDispatcher interface {
	Dispatch(ctx context.Context, item *media.Item, data []byte, settings media.Settings) (*media.Analysis, error)
}

// Controller is the single owner of all run and item state. No other
// component writes item state.
type Controller struct {
	dispatcher ItemDispatcher
	store      storage.Storage
	results    *database.ResultRepo
	logger     *slog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewController creates a controller. The results repo may be nil when no
// persistence is configured.
func NewController(dispatcher ItemDispatcher, store storage.Storage, results *database.ResultRepo, logger *slog.Logger) *Controller {
	return &Controller{
		dispatcher: dispatcher,
		store:      store,
		results:    results,
		logger:     logger,
		runs:       make(map[string]*Run),
	}
}

// CreateBatch expands containers, classifies every candidate, spools the
// accepted payloads to storage and registers a pending run. Files that do
// not become items are reported as notices.
func (c *Controller) CreateBatch(files []UploadedFile) (RunView, error) {
	run := &Run{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		updates:   make(chan Update, 100),
	}

	for _, f := range files {
		entries, err := archive.Expand(f.SourceName, f.ContentType, f.Data)
		if err != nil {
			switch {
			case errors.Is(err, archive.ErrUnreadable):
				run.Notices = append(run.Notices, Notice{
					Kind:       NoticeArchiveUnreadable,
					SourceName: f.SourceName,
					Detail:     err.Error(),
				})
			case errors.Is(err, archive.ErrNoImages):
				run.Notices = append(run.Notices, Notice{
					Kind:       NoticeEmptyArchive,
					SourceName: f.SourceName,
					Detail:     err.Error(),
				})
			default:
				return RunView{}, fmt.Errorf("expanding %s: %w", f.SourceName, err)
			}
			continue
		}

		for _, entry := range entries {
			kind, err := classify.Classify(entry.ContentType, entry.Name)
			if err != nil {
				run.Notices = append(run.Notices, Notice{
					Kind:       NoticeUnsupportedMedia,
					SourceName: entry.Name,
					Detail:     err.Error(),
				})
				continue
			}

			storedName, err := c.store.SaveFile(bytes.NewReader(entry.Data), storage.FileInfo{
				Filename:    entry.Name,
				ContentType: entry.ContentType,
				Size:        int64(len(entry.Data)),
			})
			if err != nil {
				return RunView{}, fmt.Errorf("storing %s: %w", entry.Name, err)
			}

			item := media.NewItem(entry.Name, entry.ContentType, storedName, int64(len(entry.Data)), kind)
			run.Items = append(run.Items, item)
		}
	}

	c.mu.Lock()
	c.runs[run.ID] = run
	c.mu.Unlock()

	c.logger.Info("batch created",
		"batch", run.ID,
		"items", len(run.Items),
		"notices", len(run.Notices),
	)

	return run.view(), nil
}

// StartRun snapshots the settings and begins draining the queue in the
// background. A run can be started once.
func (c *Controller) StartRun(id string, settings media.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, exists := c.runs[id]
	if !exists {
		return fmt.Errorf("batch not found: %s", id)
	}
	if run.started {
		return fmt.Errorf("batch already started: %s", id)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	run.started = true
	run.cancel = cancel
	run.Settings = settings
	run.StartedAt = time.Now()

	go c.processRun(loopCtx, run)

	return nil
}

// GetRun returns a snapshot of the run.
func (c *Controller) GetRun(id string) (RunView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	run, exists := c.runs[id]
	if !exists {
		return RunView{}, false
	}
	return run.view(), true
}

// Items returns copies of the run's items for export.
func (c *Controller) Items(id string) ([]media.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	run, exists := c.runs[id]
	if !exists {
		return nil, false
	}
	items := make([]media.Item, len(run.Items))
	for i, item := range run.Items {
		items[i] = *item
	}
	return items, true
}

// Updates exposes the run's state-change stream. There is one stream per
// run; it closes when the run finishes or is deleted before starting.
func (c *Controller) Updates(id string) (<-chan Update, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	run, exists := c.runs[id]
	if !exists {
		return nil, false
	}
	return run.updates, true
}

// DeleteBatch discards the run, its items and their stored payloads. A
// running drain is cancelled; the in-flight dispatch is released through
// its context.
func (c *Controller) DeleteBatch(id string) error {
	c.mu.Lock()
	run, exists := c.runs[id]
	if exists {
		delete(c.runs, id)
	}
	c.mu.Unlock()

	if !exists {
		return fmt.Errorf("batch not found: %s", id)
	}

	if run.cancel != nil {
		run.cancel()
	}
	if !run.started {
		close(run.updates)
	}

	for _, item := range run.Items {
		if err := c.store.DeleteFile(item.StoredName); err != nil {
			c.logger.Warn("failed to delete stored payload",
				"batch", id, "file", item.StoredName, "error", err)
		}
	}

	c.logger.Info("batch deleted", "batch", id)
	return nil
}

// processRun drains the queue exactly once. A failed item never halts the
// items behind it.
func (c *Controller) processRun(ctx context.Context, run *Run) {
	defer close(run.updates)

	c.logger.Info("run started", "batch", run.ID, "items", len(run.Items))

	for _, item := range run.Items {
		select {
		case <-ctx.Done():
			c.logger.Info("run aborted", "batch", run.ID)
			return
		default:
		}

		c.beginItem(run, item)

		data, err := c.store.ReadFile(item.StoredName)
		if err != nil {
			c.failItem(run, item, fmt.Sprintf("stored payload unreadable: %v", err))
			continue
		}

		analysis, err := c.dispatcher.Dispatch(ctx, item, data, run.Settings)
		if err != nil {
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
				c.logger.Info("run aborted mid-item", "batch", run.ID, "item", item.ID)
				return
			}
			c.failItem(run, item, err.Error())
			continue
		}

		c.completeItem(run, item, analysis)
	}

	c.finishRun(run)
}

func (c *Controller) beginItem(run *Run, item *media.Item) {
	c.mu.Lock()
	item.State = media.StateAnalyzing
	item.StartedAt = time.Now()
	c.mu.Unlock()

	c.publish(run, Update{Type: "item_started", Data: *item})
}

// failItem records the terminal failure. Exactly one of result and failure
// reason is set once an item leaves pending.
func (c *Controller) failItem(run *Run, item *media.Item, reason string) {
	c.mu.Lock()
	item.State = media.StateFailed
	item.FailureReason = reason
	item.Result = nil
	item.SettledAt = time.Now()
	progress := run.progress()
	c.mu.Unlock()

	c.logger.Warn("item failed",
		"batch", run.ID, "item", item.ID, "file", item.SourceName, "reason", reason)

	c.publish(run, Update{Type: "item_settled", Data: *item})
	c.publish(run, Update{Type: "progress", Data: progress})
}

func (c *Controller) completeItem(run *Run, item *media.Item, analysis *media.Analysis) {
	c.mu.Lock()
	item.State = media.StateCompleted
	item.Result = analysis
	item.FailureReason = ""
	item.SettledAt = time.Now()
	progress := run.progress()
	c.mu.Unlock()

	c.logger.Info("item completed",
		"batch", run.ID, "item", item.ID, "file", item.SourceName,
		"confidence", analysis.Confidence)

	c.persistResult(run, item, analysis)

	c.publish(run, Update{Type: "item_settled", Data: *item})
	c.publish(run, Update{Type: "progress", Data: progress})
}

func (c *Controller) finishRun(run *Run) {
	c.mu.Lock()
	run.CompletedAt = time.Now()
	summary := run.summary()
	c.mu.Unlock()

	c.logger.Info("run finished",
		"batch", run.ID,
		"success", summary.SuccessCount,
		"failure", summary.FailureCount,
		"elapsed", run.CompletedAt.Sub(run.StartedAt),
	)

	c.publish(run, Update{Type: "complete", Data: summary})
}

func (c *Controller) persistResult(run *Run, item *media.Item, analysis *media.Analysis) {
	if c.results == nil {
		return
	}

	stored := &database.StoredResult{
		ID:           item.ID,
		BatchID:      run.ID,
		Filename:     item.SourceName,
		Kind:         string(item.Kind),
		Confidence:   analysis.Confidence,
		Address:      analysis.Address,
		EntityCount:  len(analysis.Entities),
		ProcessingMs: analysis.ProcessingTime.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	if analysis.Coordinates != nil {
		stored.Latitude = sql.NullFloat64{Float64: analysis.Coordinates.Latitude, Valid: true}
		stored.Longitude = sql.NullFloat64{Float64: analysis.Coordinates.Longitude, Valid: true}
	}

	if err := c.results.Insert(context.Background(), stored); err != nil {
		c.logger.Warn("failed to persist result",
			"batch", run.ID, "item", item.ID, "error", err)
	}
}

// publish never blocks the drain loop: if no observer is keeping up the
// update is dropped.
func (c *Controller) publish(run *Run, update Update) {
	select {
	case run.updates <- update:
	default:
		c.logger.Warn("update stream full, dropping update",
			"batch", run.ID, "type", update.Type)
	}
}
