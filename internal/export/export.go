// Package export flattens terminal items into the two downloadable
// artifacts: a structured JSON document of successful analyses and a
// tabular CSV with one row per detected entity. It is a pure projection
// over already-computed results and never mutates an item.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lyalik/geo-locator/internal/media"
)

// Record is one row of the structured export. Failed items never appear
// here.
type Record struct {
	Filename              string             `json:"filename"`
	Kind                  media.Kind         `json:"kind"`
	Coordinates           *media.Coordinates `json:"coordinates,omitempty"`
	Confidence            float64            `json:"confidence"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	ExportedAt            string             `json:"exported_at"`
}

// Document is the full structured export artifact.
type Document struct {
	GeneratedAt string   `json:"generated_at"`
	Total       int      `json:"total"`
	Records     []Record `json:"records"`
}

// BuildDocument projects the completed items into the structured artifact.
func BuildDocument(items []media.Item, now time.Time) Document {
	stamp := now.UTC().Format(time.RFC3339)

	doc := Document{
		GeneratedAt: stamp,
		Records:     []Record{},
	}
	for _, item := range items {
		if item.State != media.StateCompleted || item.Result == nil {
			continue
		}
		doc.Records = append(doc.Records, Record{
			Filename:              item.SourceName,
			Kind:                  item.Kind,
			Coordinates:           item.Result.Coordinates,
			Confidence:            item.Result.Confidence,
			ProcessingTimeSeconds: item.Result.ProcessingTime.Seconds(),
			ExportedAt:            stamp,
		})
	}
	doc.Total = len(doc.Records)
	return doc
}

// WriteJSON writes the structured artifact.
func WriteJSON(w io.Writer, items []media.Item) error {
	doc := BuildDocument(items, time.Now())

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"index", "filename", "item_id", "timestamp",
	"source", "category", "confidence_percent", "location",
}

// WriteCSV writes the tabular artifact: one row per detected entity. A
// completed item with no entities still contributes a single row so its
// location survives in the table.
func WriteCSV(w io.Writer, items []media.Item) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	index := 1
	for _, item := range items {
		if item.State != media.StateCompleted || item.Result == nil {
			continue
		}

		timestamp := ""
		if !item.SettledAt.IsZero() {
			timestamp = item.SettledAt.UTC().Format(time.RFC3339)
		}
		location := formatLocation(item.Result)

		entities := item.Result.Entities
		if len(entities) == 0 {
			row := []string{
				strconv.Itoa(index), item.SourceName, item.ID, timestamp,
				"", "", formatPercent(item.Result.Confidence), location,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			index++
			continue
		}

		for _, entity := range entities {
			row := []string{
				strconv.Itoa(index), item.SourceName, item.ID, timestamp,
				entity.Source, entity.Category, formatPercent(entity.Confidence), location,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			index++
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatLocation(analysis *media.Analysis) string {
	if analysis.Address != "" {
		return analysis.Address
	}
	if analysis.Coordinates != nil {
		return fmt.Sprintf("%.6f, %.6f", analysis.Coordinates.Latitude, analysis.Coordinates.Longitude)
	}
	return ""
}

func formatPercent(confidence float64) string {
	return strconv.FormatFloat(confidence*100, 'f', 1, 64)
}
