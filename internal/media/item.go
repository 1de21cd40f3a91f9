package media

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the classified media type of an item.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// State is the lifecycle state of an item within a batch run.
type State string

const (
	StatePending   State = "pending"
	StateAnalyzing State = "analyzing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Item is one media unit submitted for analysis. Items are created at
// ingestion time (after archive expansion and classification) and are
// mutated only by the batch controller.
type Item struct {
	ID            string    `json:"id"`
	SourceName    string    `json:"source_name"`
	ContentType   string    `json:"content_type"`
	StoredName    string    `json:"-"`
	ByteSize      int64     `json:"byte_size"`
	Kind          Kind      `json:"kind"`
	State         State     `json:"state"`
	Result        *Analysis `json:"result,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	SettledAt     time.Time `json:"settled_at,omitempty"`
}

func NewItem(sourceName, contentType, storedName string, size int64, kind Kind) *Item {
	return &Item{
		ID:          uuid.New().String(),
		SourceName:  sourceName,
		ContentType: contentType,
		StoredName:  storedName,
		ByteSize:    size,
		Kind:        kind,
		State:       StatePending,
		EnqueuedAt:  time.Now(),
	}
}

// Settings is the immutable configuration snapshot captured at run start.
// The video sampling parameters have no effect on image items.
type Settings struct {
	LocationHint  string `json:"location_hint,omitempty"`
	FrameInterval int    `json:"frame_interval"`
	MaxFrames     int    `json:"max_frames"`
}
