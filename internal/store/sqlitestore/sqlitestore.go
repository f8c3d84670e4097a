// Package sqlitestore implements the store's durable port on SQLite.
package sqlitestore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anqer/anqer/internal/config"
	"github.com/anqer/anqer/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite handle implementing store.Durable.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database in the data directory.
func Open() (*DB, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dataDir, "anqer.db"))
}

// OpenPath opens a database at an explicit path and applies the schema.
func OpenPath(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas for performance + concurrency.
	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) LoadPersons() ([]model.Person, error) {
	rows, err := d.db.Query(`
		SELECT person_id, full_name, created_at, COALESCE(merged_into, ''), confidence_score
		FROM persons
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var out []model.Person
	for rows.Next() {
		var p model.Person
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.FullName, &createdAt, &p.MergedInto, &p.ConfidenceScore); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) LoadEvidence() ([]model.IdentityEvidence, error) {
	rows, err := d.db.Query(`
		SELECT evidence_id, person_id, source_platform, identifier_type, identifier_value,
			confidence, first_seen_at
		FROM evidence
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []model.IdentityEvidence
	for rows.Next() {
		var e model.IdentityEvidence
		var firstSeen int64
		if err := rows.Scan(&e.ID, &e.PersonID, &e.SourcePlatform, &e.IdentifierType,
			&e.IdentifierValue, &e.Confidence, &firstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		e.FirstSeenAt = time.Unix(firstSeen, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) LoadInteractions() ([]model.Interaction, error) {
	rows, err := d.db.Query(`
		SELECT interaction_id, interaction_type, occurred_at, source_platform,
			external_reference, summary_short, raw_content_pointer
		FROM interactions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var in model.Interaction
		var occurredAt int64
		if err := rows.Scan(&in.ID, &in.InteractionType, &occurredAt, &in.SourcePlatform,
			&in.ExternalReference, &in.SummaryShort, &in.RawContentPointer); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.OccurredAt = time.Unix(occurredAt, 0)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (d *DB) LoadParticipants() ([]model.InteractionParticipant, error) {
	rows, err := d.db.Query(`SELECT interaction_id, person_id, role FROM participants`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var out []model.InteractionParticipant
	for rows.Next() {
		var p model.InteractionParticipant
		if err := rows.Scan(&p.InteractionID, &p.PersonID, &p.Role); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) LoadSyncStates() ([]model.SyncState, error) {
	rows, err := d.db.Query(`SELECT platform, last_cursor, last_success_timestamp FROM sync_states`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer rows.Close()

	var out []model.SyncState
	for rows.Next() {
		var st model.SyncState
		var lastSuccess int64
		if err := rows.Scan(&st.Platform, &st.LastCursor, &lastSuccess); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		if lastSuccess > 0 {
			st.LastSuccessTimestamp = time.Unix(lastSuccess, 0)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (d *DB) LoadSyncRuns() ([]model.SyncRun, error) {
	// Most recent first, capped for display; matches the store's
	// prepend ordering.
	rows, err := d.db.Query(`
		SELECT run_id, platform, started_at, COALESCE(completed_at, 0), status, COALESCE(error_log, '')
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT 50
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var out []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var startedAt, completedAt int64
		if err := rows.Scan(&r.RunID, &r.Platform, &startedAt, &completedAt, &r.Status, &r.ErrorLog); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if completedAt > 0 {
			r.CompletedAt = time.Unix(completedAt, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UpsertPerson(p model.Person) error {
	var merged any
	if p.MergedInto != "" {
		merged = p.MergedInto
	}
	_, err := d.db.Exec(`
		INSERT INTO persons (person_id, full_name, created_at, merged_into, confidence_score)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			full_name = excluded.full_name,
			merged_into = excluded.merged_into,
			confidence_score = excluded.confidence_score
	`, p.ID, p.FullName, p.CreatedAt.Unix(), merged, p.ConfidenceScore)
	if err != nil {
		return fmt.Errorf("failed to upsert person: %w", err)
	}
	return nil
}

func (d *DB) UpsertEvidence(e model.IdentityEvidence) error {
	_, err := d.db.Exec(`
		INSERT INTO evidence (evidence_id, person_id, source_platform, identifier_type,
			identifier_value, confidence, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier_type, lower(identifier_value)) DO NOTHING
	`, e.ID, e.PersonID, e.SourcePlatform, e.IdentifierType, e.IdentifierValue,
		e.Confidence, e.FirstSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert evidence: %w", err)
	}
	return nil
}

func (d *DB) UpsertInteraction(in model.Interaction) error {
	_, err := d.db.Exec(`
		INSERT INTO interactions (interaction_id, interaction_type, occurred_at,
			source_platform, external_reference, summary_short, raw_content_pointer)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_reference) DO NOTHING
	`, in.ID, in.InteractionType, in.OccurredAt.Unix(), in.SourcePlatform,
		in.ExternalReference, in.SummaryShort, in.RawContentPointer)
	if err != nil {
		return fmt.Errorf("failed to upsert interaction: %w", err)
	}
	return nil
}

func (d *DB) UpsertParticipant(p model.InteractionParticipant) error {
	_, err := d.db.Exec(`
		INSERT INTO participants (interaction_id, person_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT(interaction_id, person_id) DO NOTHING
	`, p.InteractionID, p.PersonID, p.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

func (d *DB) UpsertSyncState(st model.SyncState) error {
	var lastSuccess int64
	if !st.LastSuccessTimestamp.IsZero() {
		lastSuccess = st.LastSuccessTimestamp.Unix()
	}
	_, err := d.db.Exec(`
		INSERT INTO sync_states (platform, last_cursor, last_success_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			last_cursor = excluded.last_cursor,
			last_success_timestamp = excluded.last_success_timestamp
	`, st.Platform, st.LastCursor, lastSuccess)
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

func (d *DB) UpsertSyncRun(r model.SyncRun) error {
	var completed any
	if !r.CompletedAt.IsZero() {
		completed = r.CompletedAt.Unix()
	}
	var errLog any
	if r.ErrorLog != "" {
		errLog = r.ErrorLog
	}
	_, err := d.db.Exec(`
		INSERT INTO sync_runs (run_id, platform, started_at, completed_at, status, error_log)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			status = excluded.status,
			error_log = excluded.error_log
	`, r.RunID, r.Platform, r.StartedAt.Unix(), completed, r.Status, errLog)
	if err != nil {
		return fmt.Errorf("failed to upsert sync run: %w", err)
	}
	return nil
}

func (d *DB) PutRaw(key, content string) error {
	_, err := d.db.Exec(`
		INSERT INTO raw_content (id, content)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content
	`, key, content)
	if err != nil {
		return fmt.Errorf("failed to put raw content: %w", err)
	}
	return nil
}

func (d *DB) GetRaw(key string) (string, bool, error) {
	var content string
	err := d.db.QueryRow(`SELECT content FROM raw_content WHERE id = ?`, key).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get raw content: %w", err)
	}
	return content, true, nil
}

// UpsertInsight mirrors a relationship narrative for a person.
func (d *DB) UpsertInsight(in model.RelationshipInsight) error {
	_, err := d.db.Exec(`
		INSERT INTO relationship_insights (person_id, summary, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			summary = excluded.summary,
			last_updated = excluded.last_updated
	`, in.PersonID, in.Summary, in.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert insight: %w", err)
	}
	return nil
}

// GetInsight returns the cached narrative for a person if present.
func (d *DB) GetInsight(personID string) (model.RelationshipInsight, bool, error) {
	var in model.RelationshipInsight
	var updated int64
	err := d.db.QueryRow(`
		SELECT person_id, summary, last_updated FROM relationship_insights WHERE person_id = ?
	`, personID).Scan(&in.PersonID, &in.Summary, &updated)
	if err == sql.ErrNoRows {
		return in, false, nil
	}
	if err != nil {
		return in, false, fmt.Errorf("failed to get insight: %w", err)
	}
	in.LastUpdated = time.Unix(updated, 0)
	return in, true, nil
}
