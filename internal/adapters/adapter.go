package adapters

import (
	"context"
	"time"

	"github.com/anqer/anqer/internal/model"
)

// Adapter is the interface all source adapters implement. Each Sync
// invocation is wrapped in a SyncRun record: opened before any
// ingestion work, closed exactly once regardless of how ingestion
// terminates.
type Adapter interface {
	// Name returns the adapter name (e.g., "whatsapp", "google")
	Name() string

	// Platform returns the platform this adapter ingests from
	Platform() model.Platform

	// Sync ingests from this adapter's source into the store
	Sync(ctx context.Context) (SyncResult, error)
}

// SyncResult contains statistics about a sync operation
type SyncResult struct {
	InteractionsCreated int
	PersonsCreated      int
	RecordsSkipped      int
	Duration            time.Duration
	// Perf is an optional breakdown of phase timings (human-readable durations).
	Perf map[string]string `json:"perf,omitempty"`
}
