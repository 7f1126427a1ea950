// Package store is the document ledger: which bulletin pages have been
// processed, by which strategy, and the history of pipeline runs.
package store

import (
	"context"
	"time"
)

// DocumentStatus is the outcome of processing one bulletin.
type DocumentStatus string

const (
	// DocumentDone produced records that were merged.
	DocumentDone DocumentStatus = "done"
	// DocumentEmpty was acquired but yielded no records.
	DocumentEmpty DocumentStatus = "empty"
	// DocumentFailed could not be acquired or extracted.
	DocumentFailed DocumentStatus = "failed"
)

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// Document is one ledger row. URL is unique; recording a URL again
// replaces the earlier outcome.
type Document struct {
	ID            string         `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	URL           string         `json:"url"`
	FileID        string         `json:"file_id"`
	Status        DocumentStatus `json:"status"`
	Strategy      string         `json:"strategy,omitempty"`
	RecordCount   int            `json:"record_count"`
	ReferenceDate string         `json:"reference_date,omitempty"`
	Error         string         `json:"error,omitempty"`
	ProcessedAt   time.Time      `json:"processed_at"`
}

// Run summarizes one pipeline run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Discovered int        `json:"discovered"`
	Documents  int        `json:"documents"`
	Records    int        `json:"records"`
	Added      int        `json:"added"`
	Replaced   int        `json:"replaced"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Status DocumentStatus
	RunID  string
	Limit  int
}

// Store defines the ledger operations.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Documents
	RecordDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	ProcessedURLs(ctx context.Context) (map[string]bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
