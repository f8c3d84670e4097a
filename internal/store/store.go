package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/anqer/anqer/internal/model"
	"github.com/google/uuid"
)

// Durable is the port to the durable mirror behind the in-memory store.
// Each load method covers one entity kind and may fail independently of
// the others; upsert methods mirror single-row mutations.
type Durable interface {
	LoadPersons() ([]model.Person, error)
	LoadEvidence() ([]model.IdentityEvidence, error)
	LoadInteractions() ([]model.Interaction, error)
	LoadParticipants() ([]model.InteractionParticipant, error)
	LoadSyncStates() ([]model.SyncState, error)
	LoadSyncRuns() ([]model.SyncRun, error)

	UpsertPerson(model.Person) error
	UpsertEvidence(model.IdentityEvidence) error
	UpsertInteraction(model.Interaction) error
	UpsertParticipant(model.InteractionParticipant) error
	UpsertSyncState(model.SyncState) error
	UpsertSyncRun(model.SyncRun) error

	PutRaw(key, content string) error
	GetRaw(key string) (string, bool, error)
}

// Store holds the in-memory entity collections. The in-memory state is
// the source of truth for the running process; every mutation is
// mirrored to the durable port and a mirror failure is logged and
// swallowed, never propagated to the caller.
//
// All operations are safe under concurrent invocation from adapters for
// different platforms: a single mutex guards the collections.
type Store struct {
	mu           sync.Mutex
	persons      []model.Person
	evidence     []model.IdentityEvidence
	interactions []model.Interaction
	participants []model.InteractionParticipant
	syncStates   []model.SyncState
	syncRuns     []model.SyncRun
	rawCache     map[string]string

	durable Durable
	logf    func(format string, args ...any)
}

// New creates a store backed by the given durable mirror. durable may
// be nil, in which case the store is purely transient.
func New(durable Durable, logf func(format string, args ...any)) *Store {
	if logf == nil {
		logf = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }
	}
	return &Store{
		rawCache: make(map[string]string),
		durable:  durable,
		logf:     logf,
	}
}

// NewID mints a new entity id.
func (s *Store) NewID() string {
	return uuid.New().String()
}

// Load populates the collections from the durable mirror. Each entity
// kind is fetched independently; a kind that fails to load is logged
// and defaults to an empty collection without failing init.
func (s *Store) Load() {
	if s.durable == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows, err := s.durable.LoadPersons(); err != nil {
		s.logf("warning: failed to load persons: %v", err)
	} else {
		s.persons = rows
	}
	if rows, err := s.durable.LoadEvidence(); err != nil {
		s.logf("warning: failed to load evidence: %v", err)
	} else {
		s.evidence = rows
	}
	if rows, err := s.durable.LoadInteractions(); err != nil {
		s.logf("warning: failed to load interactions: %v", err)
	} else {
		s.interactions = rows
	}
	if rows, err := s.durable.LoadParticipants(); err != nil {
		s.logf("warning: failed to load participants: %v", err)
	} else {
		s.participants = rows
	}
	if rows, err := s.durable.LoadSyncStates(); err != nil {
		s.logf("warning: failed to load sync states: %v", err)
	} else {
		s.syncStates = rows
	}
	if rows, err := s.durable.LoadSyncRuns(); err != nil {
		s.logf("warning: failed to load sync runs: %v", err)
	} else {
		s.syncRuns = rows
	}
}

// mirror dispatches a durable write. The write is best-effort: a
// failure is only observable via the side-channel log.
func (s *Store) mirror(op string, fn func() error) {
	if s.durable == nil {
		return
	}
	if err := fn(); err != nil {
		s.logf("warning: durable write failed (%s): %v", op, err)
	}
}

// UpsertPerson replaces an existing person by id, else appends.
func (s *Store) UpsertPerson(p model.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.persons {
		if s.persons[i].ID == p.ID {
			s.persons[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		s.persons = append(s.persons, p)
	}
	s.mirror("person", func() error { return s.durable.UpsertPerson(p) })
}

// UpsertEvidence appends evidence unless a row with the same
// (identifier type, lowercased value) already exists. First writer
// wins.
func (s *Store) UpsertEvidence(e model.IdentityEvidence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findEvidenceLocked(e.IdentifierType, e.IdentifierValue) != nil {
		return
	}
	s.evidence = append(s.evidence, e)
	s.mirror("evidence", func() error { return s.durable.UpsertEvidence(e) })
}

// UpsertInteraction appends the interaction and returns true unless its
// external reference is already present, in which case it is a no-op
// returning false. The boolean is the idempotency signal: participants
// must only be created when it returns true.
func (s *Store) UpsertInteraction(in model.Interaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.interactions {
		if s.interactions[i].ExternalReference == in.ExternalReference {
			return false
		}
	}
	s.interactions = append(s.interactions, in)
	s.mirror("interaction", func() error { return s.durable.UpsertInteraction(in) })
	return true
}

// UpsertParticipant appends unless the (interaction, person) pair
// already exists.
func (s *Store) UpsertParticipant(p model.InteractionParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.participants {
		if s.participants[i].InteractionID == p.InteractionID && s.participants[i].PersonID == p.PersonID {
			return
		}
	}
	s.participants = append(s.participants, p)
	s.mirror("participant", func() error { return s.durable.UpsertParticipant(p) })
}

// UpsertSyncState replaces any existing row for the same platform.
func (s *Store) UpsertSyncState(st model.SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.syncStates[:0]
	for _, row := range s.syncStates {
		if row.Platform != st.Platform {
			kept = append(kept, row)
		}
	}
	s.syncStates = append(kept, st)
	s.mirror("sync_state", func() error { return s.durable.UpsertSyncState(st) })
}

// UpsertSyncRun replaces an existing run by id, else prepends so the
// collection stays most-recent-first for display.
func (s *Store) UpsertSyncRun(r model.SyncRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.syncRuns {
		if s.syncRuns[i].RunID == r.RunID {
			s.syncRuns[i] = r
			s.mirror("sync_run", func() error { return s.durable.UpsertSyncRun(r) })
			return
		}
	}
	s.syncRuns = append([]model.SyncRun{r}, s.syncRuns...)
	s.mirror("sync_run", func() error { return s.durable.UpsertSyncRun(r) })
}

func (s *Store) findEvidenceLocked(t model.IdentifierType, value string) *model.IdentityEvidence {
	needle := strings.ToLower(value)
	for i := range s.evidence {
		if s.evidence[i].IdentifierType == t && strings.ToLower(s.evidence[i].IdentifierValue) == needle {
			return &s.evidence[i]
		}
	}
	return nil
}

// FindEvidence looks up evidence by type and case-insensitive value.
// The store invariant guarantees at most one match.
func (s *Store) FindEvidence(t model.IdentifierType, value string) (model.IdentityEvidence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findEvidenceLocked(t, value); e != nil {
		return *e, true
	}
	return model.IdentityEvidence{}, false
}

// HasInteraction reports whether an interaction with the given external
// reference has already been ingested.
func (s *Store) HasInteraction(externalReference string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.interactions {
		if s.interactions[i].ExternalReference == externalReference {
			return true
		}
	}
	return false
}

// InteractionsForPerson joins through participants and returns the
// person's interactions sorted by occurrence, newest first.
func (s *Store) InteractionsForPerson(personID string) []model.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{})
	for _, p := range s.participants {
		if p.PersonID == personID {
			ids[p.InteractionID] = struct{}{}
		}
	}
	var out []model.Interaction
	for _, in := range s.interactions {
		if _, ok := ids[in.ID]; ok {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out
}

// ParticipantsFor returns the participants of one interaction.
func (s *Store) ParticipantsFor(interactionID string) []model.InteractionParticipant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InteractionParticipant
	for _, p := range s.participants {
		if p.InteractionID == interactionID {
			out = append(out, p)
		}
	}
	return out
}

// EvidenceForPerson returns all evidence rows pointing at a person.
func (s *Store) EvidenceForPerson(personID string) []model.IdentityEvidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.IdentityEvidence
	for _, e := range s.evidence {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	return out
}

// Persons returns live persons; superseded persons (merged_into set)
// are excluded from all user-facing listings.
func (s *Store) Persons() []model.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Person
	for _, p := range s.persons {
		if p.MergedInto == "" {
			out = append(out, p)
		}
	}
	return out
}

// Person returns a person by id, including superseded ones.
func (s *Store) Person(id string) (model.Person, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.persons {
		if p.ID == id {
			return p, true
		}
	}
	return model.Person{}, false
}

// Interaction returns an interaction by id.
func (s *Store) Interaction(id string) (model.Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.interactions {
		if in.ID == id {
			return in, true
		}
	}
	return model.Interaction{}, false
}

// InteractionCount returns the number of ingested interactions.
func (s *Store) InteractionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.interactions)
}

// SyncStateFor returns the cursor row for a platform if one exists.
func (s *Store) SyncStateFor(platform model.Platform) (model.SyncState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.syncStates {
		if st.Platform == platform {
			return st, true
		}
	}
	return model.SyncState{}, false
}

// SyncRuns returns all run records, most recent first.
func (s *Store) SyncRuns() []model.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SyncRun, len(s.syncRuns))
	copy(out, s.syncRuns)
	return out
}

// SaveRaw stores raw content out-of-band and returns an opaque pointer
// key. The content is cached in memory and mirrored durably.
func (s *Store) SaveRaw(content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "blob_" + uuid.New().String()
	s.rawCache[key] = content
	s.mirror("raw_content", func() error { return s.durable.PutRaw(key, content) })
	return key
}

// LoadRaw resolves a raw content pointer, falling back to the durable
// mirror on cache miss.
func (s *Store) LoadRaw(key string) string {
	s.mu.Lock()
	if content, ok := s.rawCache[key]; ok {
		s.mu.Unlock()
		return content
	}
	s.mu.Unlock()

	if s.durable != nil {
		content, found, err := s.durable.GetRaw(key)
		if err == nil && found {
			s.mu.Lock()
			s.rawCache[key] = content
			s.mu.Unlock()
			return content
		}
	}
	return "Content pointer inaccessible."
}
