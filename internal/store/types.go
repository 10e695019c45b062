package store

import (
	"context"
	"time"
)

// RunWriter defines persistence for evaluation run summaries.
type RunWriter interface {
	SaveRun(ctx context.Context, run *RunRecord) error
}

// RunReader defines read access to run history.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
}

// Store defines persistence for evaluation run history.
type Store interface {
	RunWriter
	RunReader
	Close() error
}

// RunRecord stores one completed evaluation run: which model ran against
// which dataset, the headline score, and the full report for drill-down.
type RunRecord struct {
	ID         string
	Model      string
	Dataset    string
	Stage      string
	EvalType   string
	Metric     string
	Score      float64
	TotalCount int
	StartedAt  time.Time
	FinishedAt time.Time
	Report     map[string]any // Serialized report
}

// RunFilter filters run listings.
type RunFilter struct {
	Model   string
	Dataset string
	Since   time.Time
	Until   time.Time
	Limit   int
}
