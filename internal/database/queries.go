package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zombar/knowledgegraph/internal/models"
)

// ResultSummary is the listing row for stored analyses. The full result body
// stays out of listings to keep them cheap.
type ResultSummary struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Partial     bool      `json:"partial"`
	EntityCount int       `json:"entity_count"`
	TripleCount int       `json:"triple_count"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveResult stores a finished analysis result together with its entity
// rows. Saving the same id again replaces the previous result.
func (db *DB) SaveResult(result *models.AnalysisResult, source string) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-saves without a source (enrichment updates) keep the source the
	// result was first stored with.
	if source == "" {
		var existing string
		err := tx.QueryRow("SELECT source FROM results WHERE id = ?", result.ID).Scan(&existing)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read existing source: %w", err)
		}
		source = existing
	}

	partial := 0
	if result.Partial {
		partial = 1
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO results
			(id, source, result, partial, entity_count, triple_count, node_count, edge_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, source, string(body), partial,
		len(result.Entities), len(result.Triples),
		result.Graph.NodeCount, result.Graph.EdgeCount,
		result.CreatedAt, result.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM result_entities WHERE result_id = ?", result.ID); err != nil {
		return fmt.Errorf("failed to clear entity rows: %w", err)
	}

	for _, e := range result.Entities {
		_, err = tx.Exec(`
			INSERT INTO result_entities (result_id, entity_id, label, type, mention_count)
			VALUES (?, ?, ?, ?, ?)
		`, result.ID, e.ID, e.Label, string(e.Type), e.MentionCount)
		if err != nil {
			return fmt.Errorf("failed to insert entity row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetResult retrieves a stored result by ID. Returns nil without error when
// the id is unknown.
func (db *DB) GetResult(id string) (*models.AnalysisResult, error) {
	var body string
	err := db.conn.QueryRow("SELECT result FROM results WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ListResults returns stored result summaries, newest first.
func (db *DB) ListResults(limit, offset int) ([]ResultSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(`
		SELECT id, source, partial, entity_count, triple_count, node_count, edge_count, created_at
		FROM results
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	summaries := []ResultSummary{}
	for rows.Next() {
		var s ResultSummary
		var partial int
		if err := rows.Scan(&s.ID, &s.Source, &partial, &s.EntityCount, &s.TripleCount, &s.NodeCount, &s.EdgeCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		s.Partial = partial != 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// FindResultsByEntity returns summaries of results mentioning an entity
// label, case-insensitive exact match.
func (db *DB) FindResultsByEntity(label string) ([]ResultSummary, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT r.id, r.source, r.partial, r.entity_count, r.triple_count, r.node_count, r.edge_count, r.created_at
		FROM results r
		JOIN result_entities e ON e.result_id = r.id
		WHERE LOWER(e.label) = LOWER(?)
		ORDER BY r.created_at DESC
	`, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query results by entity: %w", err)
	}
	defer rows.Close()

	summaries := []ResultSummary{}
	for rows.Next() {
		var s ResultSummary
		var partial int
		if err := rows.Scan(&s.ID, &s.Source, &partial, &s.EntityCount, &s.TripleCount, &s.NodeCount, &s.EdgeCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		s.Partial = partial != 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteResult removes a stored result. Deleting an unknown id is not an
// error.
func (db *DB) DeleteResult(id string) error {
	if _, err := db.conn.Exec("DELETE FROM results WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}
