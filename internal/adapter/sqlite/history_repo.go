package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/port"
)

const defaultListLimit = 50

// RecordFetch stores one fetch outcome
func (s *Store) RecordFetch(runID string, outcome *domain.FetchOutcome) error {
	query := `
		INSERT INTO fetches (
			run_id, input_file, url, destination, status,
			files, failed_files, bytes, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var files, failed int
	var bytes int64
	if outcome.Result != nil {
		files = outcome.Result.Files
		failed = outcome.Result.Failed
		bytes = outcome.Result.BytesWritten
	}

	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err := s.db.Exec(query,
		runID, outcome.InputFile, outcome.Reference.URL, outcome.Destination, outcome.Status,
		files, failed, bytes, errString(outcome.Err), finished.UnixMilli())
	return err
}

// RecordProbe stores one probe result
func (s *Store) RecordProbe(runID, inputFile string, result *domain.ProbeResult) error {
	query := `
		INSERT INTO probes (
			run_id, input_file, url, outcome, status_code, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		runID, inputFile, result.ProbeURL, result.Outcome.String(),
		result.StatusCode, errString(result.Err), time.Now().UnixMilli())
	return err
}

// ListFetches returns recent fetch records, newest first
func (s *Store) ListFetches(limit int) ([]*port.FetchRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, run_id, input_file, url, destination, status,
			   files, failed_files, bytes, error, created_at
		FROM fetches
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*port.FetchRecord
	for rows.Next() {
		r := &port.FetchRecord{}
		var createdAt int64
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.InputFile, &r.URL, &r.Destination, &r.Status,
			&r.Files, &r.FailedFiles, &r.Bytes, &r.Error, &createdAt,
		); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

// ListProbes returns recent probe records, newest first
func (s *Store) ListProbes(limit int) ([]*port.ProbeRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, run_id, input_file, url, outcome, status_code, error, created_at
		FROM probes
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*port.ProbeRecord
	for rows.Next() {
		r := &port.ProbeRecord{}
		var createdAt int64
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.InputFile, &r.URL, &r.Outcome,
			&r.StatusCode, &r.Error, &createdAt,
		); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

// CountProbes returns how many probes of runID ended with outcome
func (s *Store) CountProbes(runID string, outcome domain.ProbeOutcome) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM probes WHERE run_id = ? AND outcome = ?",
		runID, outcome.String(),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
