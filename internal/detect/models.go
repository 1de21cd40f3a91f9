package detect

import (
	"context"
	"fmt"

	"github.com/lyalik/geo-locator/internal/media"
)

// Service is the remote detection service at its interface boundary: a
// single-shot call for images and a frame-sampling call for videos. Both
// return the canonical analysis schema.
type Service interface {
	AnalyzeImage(ctx context.Context, data []byte, filename, locationHint string) (*media.Analysis, error)
	AnalyzeVideo(ctx context.Context, data []byte, filename string, settings media.Settings) (*media.Analysis, error)
}

// ApplicationError means the service responded at the transport level but
// declined to produce a result, for example when no location could be
// determined. Suggestion carries any service-proposed recovery action.
type ApplicationError struct {
	Message    string
	Suggestion string
}

func (e *ApplicationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("analysis failed: %s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return fmt.Sprintf("analysis failed: %s", e.Message)
}

type envelope struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Result     *resultPayload `json:"result,omitempty"`
}

type coordinatesPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type satellitePayload struct {
	Source    string `json:"source"`
	ImageDate string `json:"image_date"`
}

type entityPayload struct {
	Source      string  `json:"source"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// locationPayload is the nesting used by older detector builds, which put
// coordinates and address under a "location" object.
type locationPayload struct {
	Coordinates *coordinatesPayload `json:"coordinates"`
	Address     string              `json:"address"`
}

type resultPayload struct {
	Coordinates           *coordinatesPayload `json:"coordinates"`
	Confidence            float64             `json:"confidence"`
	Address               string              `json:"address"`
	Satellite             *satellitePayload   `json:"satellite"`
	Entities              []entityPayload     `json:"entities"`
	FramesSampled         int                 `json:"frames_sampled"`
	FramesWithCoordinates int                 `json:"frames_with_coordinates"`
	Location              *locationPayload    `json:"location"`
}

// normalize flattens whichever wire shape the detector produced into the
// canonical analysis schema. Top-level coordinates win; the legacy nested
// location object is the fallback.
func normalize(p *resultPayload) *media.Analysis {
	analysis := &media.Analysis{
		Confidence:            p.Confidence,
		Address:               p.Address,
		FramesSampled:         p.FramesSampled,
		FramesWithCoordinates: p.FramesWithCoordinates,
	}

	coords := p.Coordinates
	if coords == nil && p.Location != nil {
		coords = p.Location.Coordinates
	}
	if coords != nil {
		analysis.Coordinates = &media.Coordinates{
			Latitude:  coords.Latitude,
			Longitude: coords.Longitude,
		}
	}

	if analysis.Address == "" && p.Location != nil {
		analysis.Address = p.Location.Address
	}

	if p.Satellite != nil {
		analysis.Satellite = &media.Satellite{
			Source:    p.Satellite.Source,
			ImageDate: p.Satellite.ImageDate,
		}
	}

	for _, e := range p.Entities {
		analysis.Entities = append(analysis.Entities, media.Entity{
			Source:      e.Source,
			Category:    e.Category,
			Confidence:  e.Confidence,
			Description: e.Description,
		})
	}

	return analysis
}
