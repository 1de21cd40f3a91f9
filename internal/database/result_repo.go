package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StoredResult is one validated analysis outcome persisted after an item
// completes.
type StoredResult struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id"`
	Filename     string          `json:"filename"`
	Kind         string          `json:"kind"`
	Latitude     sql.NullFloat64 `json:"-"`
	Longitude    sql.NullFloat64 `json:"-"`
	Confidence   float64         `json:"confidence"`
	Address      string          `json:"address,omitempty"`
	EntityCount  int             `json:"entity_count"`
	ProcessingMs int64           `json:"processing_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ResultRepo struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

func (r *ResultRepo) Insert(ctx context.Context, result *StoredResult) error {
	query := `
	INSERT INTO analysis_results
		(id, batch_id, filename, kind, latitude, longitude, confidence, address, entity_count, processing_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		result.ID, result.BatchID, result.Filename, result.Kind,
		result.Latitude, result.Longitude, result.Confidence, result.Address,
		result.EntityCount, result.ProcessingMs, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

func (r *ResultRepo) ListRecent(ctx context.Context, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, batch_id, filename, kind, latitude, longitude, confidence, address, entity_count, processing_ms, created_at
	FROM analysis_results
	ORDER BY created_at DESC
	LIMIT ?
	`

	rows, err := r.db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var res StoredResult
		if err := rows.Scan(
			&res.ID, &res.BatchID, &res.Filename, &res.Kind,
			&res.Latitude, &res.Longitude, &res.Confidence, &res.Address,
			&res.EntityCount, &res.ProcessingMs, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *ResultRepo) ListByBatch(ctx context.Context, batchID string) ([]StoredResult, error) {
	query := `
	SELECT id, batch_id, filename, kind, latitude, longitude, confidence, address, entity_count, processing_ms, created_at
	FROM analysis_results
	WHERE batch_id = ?
	ORDER BY created_at
	`

	rows, err := r.db.conn.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results for batch: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var res StoredResult
		if err := rows.Scan(
			&res.ID, &res.BatchID, &res.Filename, &res.Kind,
			&res.Latitude, &res.Longitude, &res.Confidence, &res.Address,
			&res.EntityCount, &res.ProcessingMs, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
