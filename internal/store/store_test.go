package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anqer/anqer/internal/model"
)

func discardLogf(format string, args ...any) {}

func TestUpsertInteraction_Idempotent(t *testing.T) {
	s := New(nil, discardLogf)

	in := model.Interaction{
		ID:                s.NewID(),
		SourcePlatform:    model.PlatformGmail,
		ExternalReference: "gmail-abc123",
		OccurredAt:        time.Now(),
	}
	if !s.UpsertInteraction(in) {
		t.Fatalf("first insert should return true")
	}

	dup := in
	dup.ID = s.NewID()
	if s.UpsertInteraction(dup) {
		t.Fatalf("duplicate external reference should return false")
	}
	if got := s.InteractionCount(); got != 1 {
		t.Fatalf("expected 1 interaction, got %d", got)
	}
	if !s.HasInteraction("gmail-abc123") {
		t.Fatalf("HasInteraction should report the ingested reference")
	}
	if s.HasInteraction("gmail-other") {
		t.Fatalf("HasInteraction should not report unknown references")
	}
}

func TestUpsertEvidence_FirstWriterWins(t *testing.T) {
	s := New(nil, discardLogf)

	first := model.IdentityEvidence{
		ID:              s.NewID(),
		PersonID:        "person-1",
		IdentifierType:  model.IdentifierEmail,
		IdentifierValue: "alice@example.com",
	}
	s.UpsertEvidence(first)

	// Same identifier with different casing must not create a second row
	// or repoint the identifier.
	second := model.IdentityEvidence{
		ID:              s.NewID(),
		PersonID:        "person-2",
		IdentifierType:  model.IdentifierEmail,
		IdentifierValue: "Alice@Example.com",
	}
	s.UpsertEvidence(second)

	e, ok := s.FindEvidence(model.IdentifierEmail, "ALICE@example.com")
	if !ok {
		t.Fatalf("evidence lookup should be case-insensitive")
	}
	if e.PersonID != "person-1" {
		t.Fatalf("expected first writer to win, evidence points at %s", e.PersonID)
	}

	// Same value under a different identifier type is a distinct row.
	s.UpsertEvidence(model.IdentityEvidence{
		ID:              s.NewID(),
		PersonID:        "person-3",
		IdentifierType:  model.IdentifierPlatformID,
		IdentifierValue: "alice@example.com",
	})
	e, ok = s.FindEvidence(model.IdentifierPlatformID, "alice@example.com")
	if !ok || e.PersonID != "person-3" {
		t.Fatalf("identifier type should partition the uniqueness scope")
	}
}

func TestUpsertParticipant_UniquePair(t *testing.T) {
	s := New(nil, discardLogf)

	p := model.InteractionParticipant{InteractionID: "in-1", PersonID: "p-1", Role: model.RoleSender}
	s.UpsertParticipant(p)
	s.UpsertParticipant(p)

	if got := len(s.ParticipantsFor("in-1")); got != 1 {
		t.Fatalf("expected 1 participant, got %d", got)
	}
}

func TestUpsertSyncState_ReplacesPerPlatform(t *testing.T) {
	s := New(nil, discardLogf)

	s.UpsertSyncState(model.SyncState{Platform: model.PlatformGmail, LastCursor: "page-1"})
	s.UpsertSyncState(model.SyncState{Platform: model.PlatformGmail, LastCursor: "page-2"})
	s.UpsertSyncState(model.SyncState{Platform: model.PlatformWhatsApp, LastCursor: "other"})

	st, ok := s.SyncStateFor(model.PlatformGmail)
	if !ok {
		t.Fatalf("expected a gmail sync state")
	}
	if st.LastCursor != "page-2" {
		t.Fatalf("expected replaced cursor page-2, got %s", st.LastCursor)
	}
}

func TestUpsertSyncRun_ReplaceAndOrder(t *testing.T) {
	s := New(nil, discardLogf)

	first := model.SyncRun{RunID: "run-1", Platform: model.PlatformGmail, Status: model.RunStatusRunning}
	s.UpsertSyncRun(first)

	second := model.SyncRun{RunID: "run-2", Platform: model.PlatformWhatsApp, Status: model.RunStatusRunning}
	s.UpsertSyncRun(second)

	first.Status = model.RunStatusCompleted
	s.UpsertSyncRun(first)

	runs := s.SyncRuns()
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-2" {
		t.Fatalf("expected most recent run first, got %s", runs[0].RunID)
	}
	if runs[1].Status != model.RunStatusCompleted {
		t.Fatalf("expected run-1 replaced in place with completed status, got %s", runs[1].Status)
	}
}

func TestPersons_ExcludesMerged(t *testing.T) {
	s := New(nil, discardLogf)

	s.UpsertPerson(model.Person{ID: "p-1", FullName: "Alice"})
	s.UpsertPerson(model.Person{ID: "p-2", FullName: "Alice Dup", MergedInto: "p-1"})

	persons := s.Persons()
	if len(persons) != 1 || persons[0].ID != "p-1" {
		t.Fatalf("merged persons must be excluded from listings, got %+v", persons)
	}

	// Direct lookup still resolves the superseded person.
	if _, ok := s.Person("p-2"); !ok {
		t.Fatalf("superseded person should remain addressable by id")
	}
}

func TestInteractionsForPerson_SortedNewestFirst(t *testing.T) {
	s := New(nil, discardLogf)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		in := model.Interaction{
			ID:                fmt.Sprintf("in-%d", i),
			ExternalReference: fmt.Sprintf("ref-%d", i),
			OccurredAt:        base.Add(time.Duration(i) * time.Hour),
		}
		s.UpsertInteraction(in)
		s.UpsertParticipant(model.InteractionParticipant{InteractionID: in.ID, PersonID: "p-1", Role: model.RoleSender})
	}
	// Unrelated interaction must not appear.
	s.UpsertInteraction(model.Interaction{ID: "in-x", ExternalReference: "ref-x", OccurredAt: base})

	got := s.InteractionsForPerson("p-1")
	if len(got) != 3 {
		t.Fatalf("expected 3 interactions, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].OccurredAt.After(got[i-1].OccurredAt) {
			t.Fatalf("interactions not sorted newest first: %v", got)
		}
	}
}

func TestSaveRaw_RoundTrip(t *testing.T) {
	s := New(nil, discardLogf)

	key := s.SaveRaw("hello raw content")
	if key == "" {
		t.Fatalf("expected a pointer key")
	}
	if got := s.LoadRaw(key); got != "hello raw content" {
		t.Fatalf("unexpected raw content %q", got)
	}
	if got := s.LoadRaw("blob_missing"); got != "Content pointer inaccessible." {
		t.Fatalf("expected inaccessible sentinel, got %q", got)
	}
}

type failingDurable struct {
	Durable
}

func (failingDurable) UpsertPerson(model.Person) error { return fmt.Errorf("disk on fire") }
func (failingDurable) LoadPersons() ([]model.Person, error) {
	return nil, fmt.Errorf("disk on fire")
}
func (failingDurable) LoadEvidence() ([]model.IdentityEvidence, error)           { return nil, nil }
func (failingDurable) LoadInteractions() ([]model.Interaction, error)            { return nil, nil }
func (failingDurable) LoadParticipants() ([]model.InteractionParticipant, error) { return nil, nil }
func (failingDurable) LoadSyncStates() ([]model.SyncState, error)                { return nil, nil }
func (failingDurable) LoadSyncRuns() ([]model.SyncRun, error)                    { return nil, nil }

func TestDurableFailure_DoesNotPropagate(t *testing.T) {
	var logged int
	s := New(failingDurable{}, func(format string, args ...any) { logged++ })

	s.Load()

	// The mutation must land in memory even though the mirror fails.
	s.UpsertPerson(model.Person{ID: "p-1", FullName: "Alice"})
	if _, ok := s.Person("p-1"); !ok {
		t.Fatalf("in-memory write must survive a durable failure")
	}
	if logged == 0 {
		t.Fatalf("durable failures must be logged")
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New(nil, discardLogf)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.UpsertInteraction(model.Interaction{
					ID:                fmt.Sprintf("in-%d-%d", w, i),
					ExternalReference: fmt.Sprintf("ref-%d-%d", w, i),
				})
				s.UpsertEvidence(model.IdentityEvidence{
					ID:              fmt.Sprintf("e-%d-%d", w, i),
					PersonID:        "p-1",
					IdentifierType:  model.IdentifierEmail,
					IdentifierValue: fmt.Sprintf("u%d-%d@example.com", w, i),
				})
			}
		}(w)
	}
	wg.Wait()

	if got := s.InteractionCount(); got != 400 {
		t.Fatalf("expected 400 interactions, got %d", got)
	}
}
