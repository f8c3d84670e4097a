package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/anqer/anqer/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRoundTrip(t *testing.T) {
	d := openTestDB(t)

	now := time.Now().Truncate(time.Second)

	person := model.Person{ID: "p-1", FullName: "Alice", CreatedAt: now, ConfidenceScore: 0.1}
	if err := d.UpsertPerson(person); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	if err := d.UpsertEvidence(model.IdentityEvidence{
		ID: "e-1", PersonID: "p-1", SourcePlatform: model.PlatformGmail,
		IdentifierType: model.IdentifierEmail, IdentifierValue: "alice@example.com",
		Confidence: 1.0, FirstSeenAt: now,
	}); err != nil {
		t.Fatalf("UpsertEvidence: %v", err)
	}
	if err := d.UpsertInteraction(model.Interaction{
		ID: "in-1", InteractionType: model.PlatformGmail, OccurredAt: now,
		SourcePlatform: model.PlatformGmail, ExternalReference: "gmail-1",
		SummaryShort: "hello", RawContentPointer: "blob_1",
	}); err != nil {
		t.Fatalf("UpsertInteraction: %v", err)
	}
	if err := d.UpsertParticipant(model.InteractionParticipant{
		InteractionID: "in-1", PersonID: "p-1", Role: model.RoleSender,
	}); err != nil {
		t.Fatalf("UpsertParticipant: %v", err)
	}
	if err := d.UpsertSyncState(model.SyncState{
		Platform: model.PlatformGmail, LastCursor: "page-2", LastSuccessTimestamp: now,
	}); err != nil {
		t.Fatalf("UpsertSyncState: %v", err)
	}
	if err := d.UpsertSyncRun(model.SyncRun{
		RunID: "run-1", Platform: model.PlatformGmail, StartedAt: now, Status: model.RunStatusRunning,
	}); err != nil {
		t.Fatalf("UpsertSyncRun: %v", err)
	}

	persons, err := d.LoadPersons()
	if err != nil {
		t.Fatalf("LoadPersons: %v", err)
	}
	if len(persons) != 1 || persons[0].FullName != "Alice" {
		t.Fatalf("unexpected persons: %+v", persons)
	}
	if !persons[0].CreatedAt.Equal(now) {
		t.Fatalf("created_at round trip: got %v want %v", persons[0].CreatedAt, now)
	}

	evidence, err := d.LoadEvidence()
	if err != nil {
		t.Fatalf("LoadEvidence: %v", err)
	}
	if len(evidence) != 1 || evidence[0].IdentifierValue != "alice@example.com" {
		t.Fatalf("unexpected evidence: %+v", evidence)
	}

	interactions, err := d.LoadInteractions()
	if err != nil {
		t.Fatalf("LoadInteractions: %v", err)
	}
	if len(interactions) != 1 || interactions[0].ExternalReference != "gmail-1" {
		t.Fatalf("unexpected interactions: %+v", interactions)
	}

	participants, err := d.LoadParticipants()
	if err != nil {
		t.Fatalf("LoadParticipants: %v", err)
	}
	if len(participants) != 1 || participants[0].Role != model.RoleSender {
		t.Fatalf("unexpected participants: %+v", participants)
	}

	states, err := d.LoadSyncStates()
	if err != nil {
		t.Fatalf("LoadSyncStates: %v", err)
	}
	if len(states) != 1 || states[0].LastCursor != "page-2" {
		t.Fatalf("unexpected sync states: %+v", states)
	}

	runs, err := d.LoadSyncRuns()
	if err != nil {
		t.Fatalf("LoadSyncRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != model.RunStatusRunning {
		t.Fatalf("unexpected sync runs: %+v", runs)
	}
	if !runs[0].CompletedAt.IsZero() {
		t.Fatalf("running run must have zero completion time")
	}
}

func TestEvidenceUniqueness_CaseInsensitive(t *testing.T) {
	d := openTestDB(t)

	now := time.Now()
	for _, id := range []string{"p-1", "p-2"} {
		if err := d.UpsertPerson(model.Person{ID: id, FullName: id, CreatedAt: now}); err != nil {
			t.Fatalf("UpsertPerson %s: %v", id, err)
		}
	}
	first := model.IdentityEvidence{
		ID: "e-1", PersonID: "p-1", SourcePlatform: model.PlatformGmail,
		IdentifierType: model.IdentifierEmail, IdentifierValue: "alice@example.com",
		Confidence: 1.0, FirstSeenAt: now,
	}
	if err := d.UpsertEvidence(first); err != nil {
		t.Fatalf("UpsertEvidence: %v", err)
	}

	dup := first
	dup.ID = "e-2"
	dup.PersonID = "p-2"
	dup.IdentifierValue = "ALICE@Example.com"
	if err := d.UpsertEvidence(dup); err != nil {
		t.Fatalf("UpsertEvidence dup: %v", err)
	}

	rows, err := d.LoadEvidence()
	if err != nil {
		t.Fatalf("LoadEvidence: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 evidence row, got %d", len(rows))
	}
	if rows[0].PersonID != "p-1" {
		t.Fatalf("first writer must win, evidence points at %s", rows[0].PersonID)
	}
}

func TestInteractionUniqueness(t *testing.T) {
	d := openTestDB(t)

	in := model.Interaction{
		ID: "in-1", InteractionType: model.PlatformGmail, OccurredAt: time.Now(),
		SourcePlatform: model.PlatformGmail, ExternalReference: "gmail-dup",
	}
	if err := d.UpsertInteraction(in); err != nil {
		t.Fatalf("UpsertInteraction: %v", err)
	}
	in.ID = "in-2"
	if err := d.UpsertInteraction(in); err != nil {
		t.Fatalf("UpsertInteraction dup: %v", err)
	}

	rows, err := d.LoadInteractions()
	if err != nil {
		t.Fatalf("LoadInteractions: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "in-1" {
		t.Fatalf("duplicate external reference must be a no-op, got %+v", rows)
	}
}

func TestSyncRunUpdate(t *testing.T) {
	d := openTestDB(t)

	run := model.SyncRun{
		RunID: "run-1", Platform: model.PlatformWhatsApp,
		StartedAt: time.Now(), Status: model.RunStatusRunning,
	}
	if err := d.UpsertSyncRun(run); err != nil {
		t.Fatalf("UpsertSyncRun: %v", err)
	}

	run.CompletedAt = time.Now()
	run.Status = model.RunStatusFailed
	run.ErrorLog = "archive unreadable"
	if err := d.UpsertSyncRun(run); err != nil {
		t.Fatalf("UpsertSyncRun update: %v", err)
	}

	runs, err := d.LoadSyncRuns()
	if err != nil {
		t.Fatalf("LoadSyncRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != model.RunStatusFailed || runs[0].ErrorLog != "archive unreadable" {
		t.Fatalf("run not updated in place: %+v", runs[0])
	}
}

func TestRawContent(t *testing.T) {
	d := openTestDB(t)

	if err := d.PutRaw("blob_1", "raw text"); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	content, found, err := d.GetRaw("blob_1")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if !found || content != "raw text" {
		t.Fatalf("GetRaw = (%q, %v)", content, found)
	}
	if _, found, err := d.GetRaw("blob_missing"); err != nil || found {
		t.Fatalf("missing key should report not found without error")
	}
}

func TestInsightCache(t *testing.T) {
	d := openTestDB(t)

	now := time.Now().Truncate(time.Second)
	if err := d.UpsertPerson(model.Person{ID: "p-1", FullName: "Alice", CreatedAt: now}); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	if err := d.UpsertInsight(model.RelationshipInsight{
		PersonID: "p-1", Summary: "an old friend", LastUpdated: now,
	}); err != nil {
		t.Fatalf("UpsertInsight: %v", err)
	}

	in, found, err := d.GetInsight("p-1")
	if err != nil {
		t.Fatalf("GetInsight: %v", err)
	}
	if !found || in.Summary != "an old friend" {
		t.Fatalf("GetInsight = (%+v, %v)", in, found)
	}
	if !in.LastUpdated.Equal(now) {
		t.Fatalf("last_updated round trip: got %v want %v", in.LastUpdated, now)
	}

	if _, found, _ := d.GetInsight("p-unknown"); found {
		t.Fatalf("unknown person should not have a cached insight")
	}
}
