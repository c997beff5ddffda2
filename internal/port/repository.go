package port

import (
	"time"

	"github.com/vertextoedge/asyncfetch/internal/domain"
)

// FetchRecord is one stored fetch outcome
type FetchRecord struct {
	ID          int64     `json:"id" yaml:"id"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	InputFile   string    `json:"input_file" yaml:"input_file"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Destination string    `json:"destination,omitempty" yaml:"destination,omitempty"`
	Status      string    `json:"status" yaml:"status"`
	Files       int       `json:"files" yaml:"files"`
	FailedFiles int       `json:"failed_files" yaml:"failed_files"`
	Bytes       int64     `json:"bytes" yaml:"bytes"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// ProbeRecord is one stored status probe
type ProbeRecord struct {
	ID         int64     `json:"id" yaml:"id"`
	RunID      string    `json:"run_id" yaml:"run_id"`
	InputFile  string    `json:"input_file" yaml:"input_file"`
	URL        string    `json:"url" yaml:"url"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	StatusCode int       `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// HistoryRepository records what each run did
type HistoryRepository interface {
	// RecordFetch stores a fetch outcome under runID
	RecordFetch(runID string, outcome *domain.FetchOutcome) error

	// RecordProbe stores a probe result under runID
	RecordProbe(runID, inputFile string, result *domain.ProbeResult) error

	// ListFetches returns the most recent fetch records, newest first
	ListFetches(limit int) ([]*FetchRecord, error)

	// ListProbes returns the most recent probe records, newest first
	ListProbes(limit int) ([]*ProbeRecord, error)
}
