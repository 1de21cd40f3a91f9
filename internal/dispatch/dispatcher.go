// Package dispatch routes one classified item to the correct remote
// analysis operation and enforces the type-dependent time budget.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lyalik/geo-locator/internal/detect"
	"github.com/lyalik/geo-locator/internal/media"
)

// FailureKind classifies why a dispatch did not produce a result.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureTransport   FailureKind = "transport_error"
	FailureApplication FailureKind = "application_failure"
)

// AnalysisError is the structured failure a dispatch surfaces to the batch
// controller. Suggestion is set only for application failures where the
// service proposed a recovery action.
type AnalysisError struct {
	Kind       FailureKind
	Message    string
	Suggestion string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Timeout bounds from the external contract: videos take longer because the
// service extracts and analyzes multiple frames per call.
const (
	DefaultImageTimeout = 120 * time.Second
	DefaultVideoTimeout = 300 * time.Second
)

type Config struct {
	ImageTimeout time.Duration
	VideoTimeout time.Duration
}

type Dispatcher struct {
	service      detect.Service
	imageTimeout time.Duration
	videoTimeout time.Duration
	logger       *slog.Logger
}

func NewDispatcher(service detect.Service, logger *slog.Logger, config Config) *Dispatcher {
	if config.ImageTimeout == 0 {
		config.ImageTimeout = DefaultImageTimeout
	}
	if config.VideoTimeout == 0 {
		config.VideoTimeout = DefaultVideoTimeout
	}

	return &Dispatcher{
		service:      service,
		imageTimeout: config.ImageTimeout,
		videoTimeout: config.VideoTimeout,
		logger:       logger,
	}
}

// Dispatch invokes the remote operation selected by the item's kind. The
// call is bounded by the kind's timeout through the request context; the
// dispatcher never retries. On success the returned analysis carries the
// observed processing duration.
func (d *Dispatcher) Dispatch(ctx context.Context, item *media.Item, data []byte, settings media.Settings) (*media.Analysis, error) {
	timeout := d.imageTimeout
	if item.Kind == media.KindVideo {
		timeout = d.videoTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var analysis *media.Analysis
	var err error
	switch item.Kind {
	case media.KindVideo:
		analysis, err = d.service.AnalyzeVideo(callCtx, data, item.SourceName, settings)
	default:
		analysis, err = d.service.AnalyzeImage(callCtx, data, item.SourceName, settings.LocationHint)
	}

	elapsed := time.Since(start)

	if err != nil {
		dispatchErr := classifyError(err, timeout)
		d.logger.Warn("dispatch failed",
			"item", item.ID,
			"file", item.SourceName,
			"kind", item.Kind,
			"failure", dispatchErr.Kind,
			"elapsed", elapsed,
		)
		return nil, dispatchErr
	}

	analysis.ProcessingTime = elapsed
	d.logger.Debug("dispatch completed",
		"item", item.ID,
		"file", item.SourceName,
		"kind", item.Kind,
		"elapsed", elapsed,
	)
	return analysis, nil
}

func classifyError(err error, timeout time.Duration) *AnalysisError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AnalysisError{
			Kind:    FailureTimeout,
			Message: fmt.Sprintf("analysis exceeded %s", timeout),
		}
	}

	var appErr *detect.ApplicationError
	if errors.As(err, &appErr) {
		return &AnalysisError{
			Kind:       FailureApplication,
			Message:    appErr.Message,
			Suggestion: appErr.Suggestion,
		}
	}

	return &AnalysisError{
		Kind:    FailureTransport,
		Message: err.Error(),
	}
}
