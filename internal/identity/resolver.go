// Package identity implements deterministic identity resolution: every
// raw platform identifier maps to exactly one canonical Person. No
// fuzzy logic permitted.
package identity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// Confidence assigned to a freshly minted person. An identity node from
// an external platform is provisional until corroborated; the SYSTEM
// platform (the local user) is fully trusted.
const (
	provisionalPersonConfidence = 0.1
	systemPersonConfidence      = 1.0
	mintedEvidenceConfidence    = 1.0
)

// DefaultName is used when a source offers no display name.
const DefaultName = "Unknown Node"

// Resolver is the single chokepoint adapters use to obtain a person id
// for an identifier. It guarantees at most one Person per
// (identifier type, normalized value): the lookup and the mint run
// under one mutex, so concurrent adapters racing on the same
// identifier cannot both miss the lookup and mint duplicate persons.
type Resolver struct {
	mu    sync.Mutex
	store *store.Store
}

func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve maps an identifier to a Person id, minting a new Person and
// its first evidence row when the identifier has never been seen.
// Values are normalized (trimmed, lowercased) before lookup, so casing
// and surrounding whitespace never split an identity. The created flag
// reports whether a new Person was minted.
func (r *Resolver) Resolve(platform model.Platform, identType model.IdentifierType, rawValue, nameHint string) (personID string, created bool, err error) {
	value := strings.ToLower(strings.TrimSpace(rawValue))
	if value == "" {
		return "", false, fmt.Errorf("empty identifier for type %s", identType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.store.FindEvidence(identType, value); ok {
		return existing.PersonID, false, nil
	}

	name := strings.TrimSpace(nameHint)
	if name == "" {
		name = DefaultName
	}

	confidence := provisionalPersonConfidence
	if platform == model.PlatformSystem {
		confidence = systemPersonConfidence
	}

	now := time.Now()
	person := model.Person{
		ID:              r.store.NewID(),
		FullName:        name,
		CreatedAt:       now,
		ConfidenceScore: confidence,
	}
	evidence := model.IdentityEvidence{
		ID:              r.store.NewID(),
		PersonID:        person.ID,
		SourcePlatform:  platform,
		IdentifierType:  identType,
		IdentifierValue: value,
		Confidence:      mintedEvidenceConfidence,
		FirstSeenAt:     now,
	}

	r.store.UpsertPerson(person)
	r.store.UpsertEvidence(evidence)

	return person.ID, true, nil
}

// Attach records a secondary identifier as evidence for an already
// resolved person. This is the one deliberate merge of distinct
// identifier values into one Person: the source asserts they co-occur
// on a single external contact record. First writer wins if the
// identifier is already claimed.
func (r *Resolver) Attach(personID string, platform model.Platform, identType model.IdentifierType, rawValue string, confidence float64) {
	value := strings.ToLower(strings.TrimSpace(rawValue))
	if value == "" {
		return
	}
	r.store.UpsertEvidence(model.IdentityEvidence{
		ID:              r.store.NewID(),
		PersonID:        personID,
		SourcePlatform:  platform,
		IdentifierType:  identType,
		IdentifierValue: value,
		Confidence:      confidence,
		FirstSeenAt:     time.Now(),
	})
}
