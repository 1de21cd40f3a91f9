package batch

import (
	"context"
	"time"

	"github.com/lyalik/geo-locator/internal/media"
)

// Status is the run-level state, determined solely by whether any item
// remains non-terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// NoticeKind classifies batch-level conditions raised during ingestion.
type NoticeKind string

const (
	NoticeArchiveUnreadable NoticeKind = "archive_unreadable"
	NoticeEmptyArchive      NoticeKind = "archive_empty"
	NoticeUnsupportedMedia  NoticeKind = "unsupported_media_type"
)

// Notice reports a file that never became an item: an unreadable or empty
// container, or an unsupported media type. Excluded files are reported,
// never silently dropped.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	SourceName string     `json:"source_name"`
	Detail     string     `json:"detail,omitempty"`
}

// UploadedFile is one raw input as submitted by the operator, before
// archive expansion and classification.
type UploadedFile struct {
	SourceName  string
	ContentType string
	Data        []byte
}

// Update is one state-change notification published to run observers.
type Update struct {
	Type string
	Data interface{}
}

// Progress is the payload of a progress update.
type Progress struct {
	BatchID  string  `json:"batch_id"`
	Settled  int     `json:"settled"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

// Summary is the run-level outcome, computed once all items are terminal.
type Summary struct {
	Total        int `json:"total"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Run is one execution of the batch queue over a fixed set of items. All
// mutation goes through the controller.
type Run struct {
	ID          string
	Items       []*media.Item
	Settings    media.Settings
	Notices     []Notice
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	updates chan Update
	started bool
	cancel  context.CancelFunc
}

// RunView is a read-only snapshot of a run for observers.
type RunView struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Progress    Progress       `json:"progress"`
	Settings    media.Settings `json:"settings"`
	Notices     []Notice       `json:"notices,omitempty"`
	Items       []media.Item   `json:"items"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Summary     *Summary       `json:"summary,omitempty"`
}

func (r *Run) settledCount() int {
	settled := 0
	for _, item := range r.Items {
		if item.State.Terminal() {
			settled++
		}
	}
	return settled
}

func (r *Run) progress() Progress {
	settled := r.settledCount()
	total := len(r.Items)
	fraction := 0.0
	if total > 0 {
		fraction = float64(settled) / float64(total)
	}
	return Progress{BatchID: r.ID, Settled: settled, Total: total, Fraction: fraction}
}

func (r *Run) status() Status {
	if !r.started {
		return StatusPending
	}
	if r.settledCount() == len(r.Items) {
		return StatusFinished
	}
	return StatusRunning
}

func (r *Run) summary() Summary {
	s := Summary{Total: len(r.Items)}
	for _, item := range r.Items {
		switch item.State {
		case media.StateCompleted:
			s.SuccessCount++
		case media.StateFailed:
			s.FailureCount++
		}
	}
	return s
}

func (r *Run) view() RunView {
	view := RunView{
		ID:       r.ID,
		Status:   r.status(),
		Progress: r.progress(),
		Settings: r.Settings,
		Notices:  r.Notices,
		Items:    make([]media.Item, len(r.Items)),
	}
	for i, item := range r.Items {
		view.Items[i] = *item
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		view.StartedAt = &t
	}
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		view.CompletedAt = &t
		s := r.summary()
		view.Summary = &s
	}
	return view
}
