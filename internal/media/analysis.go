package media

import "time"

// Coordinates is a detected geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Entity is one object or violation detected within an item. Source names
// the detection mechanism that produced it.
type Entity struct {
	Source      string  `json:"source"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// Satellite carries optional satellite imagery enrichment metadata.
type Satellite struct {
	Source    string `json:"source,omitempty"`
	ImageDate string `json:"image_date,omitempty"`
}

// Analysis is the canonical per-item result schema. Every remote response,
// whatever its shape on the wire, is normalized into this before the item
// is marked completed.
type Analysis struct {
	Coordinates           *Coordinates  `json:"coordinates,omitempty"`
	Confidence            float64       `json:"confidence"`
	Address               string        `json:"address,omitempty"`
	Satellite             *Satellite    `json:"satellite,omitempty"`
	Entities              []Entity      `json:"entities,omitempty"`
	FramesSampled         int           `json:"frames_sampled,omitempty"`
	FramesWithCoordinates int           `json:"frames_with_coordinates,omitempty"`
	ProcessingTime        time.Duration `json:"-"`
}
