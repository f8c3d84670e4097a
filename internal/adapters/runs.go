package adapters

import (
	"time"

	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// openRun creates and persists a SyncRun in running state. Every
// adapter must open its run before doing any ingestion work.
func openRun(s *store.Store, platform model.Platform) model.SyncRun {
	run := model.SyncRun{
		RunID:     s.NewID(),
		Platform:  platform,
		StartedAt: time.Now(),
		Status:    model.RunStatusRunning,
	}
	s.UpsertSyncRun(run)
	return run
}

// closeRun transitions a run to its terminal state. Called via defer so
// it executes on every exit path; a run never revisits running after a
// terminal state. Progress committed to the store before a failure is
// retained: per-record idempotency keys make partial ingestion safe.
func closeRun(s *store.Store, run model.SyncRun, runErr error) {
	run.CompletedAt = time.Now()
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.ErrorLog = runErr.Error()
	} else {
		run.Status = model.RunStatusCompleted
	}
	s.UpsertSyncRun(run)
}
