package model

import "time"

// Platform identifies a communication source.
type Platform string

const (
	PlatformGoogle   Platform = "google"
	PlatformGmail    Platform = "gmail"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformLinkedIn Platform = "linkedin"
	PlatformSystem   Platform = "system"
)

// IdentifierType classifies a raw identifier value.
type IdentifierType string

const (
	IdentifierEmail       IdentifierType = "email"
	IdentifierPhone       IdentifierType = "phone"
	IdentifierLinkedInURL IdentifierType = "linkedin_url"
	IdentifierPlatformID  IdentifierType = "platform_user_id"
)

// Participant roles on an interaction.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// SyncRun statuses. A run starts running and terminally transitions to
// exactly one of completed/failed.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Person is a canonical identity node representing one real individual.
// If MergedInto is set the person is superseded and must be excluded
// from user-facing listings. Persons are never deleted.
type Person struct {
	ID              string
	FullName        string
	CreatedAt       time.Time
	MergedInto      string // empty = live
	ConfidenceScore float64
}

// IdentityEvidence links one raw identifier to a Person. No two
// evidence rows may share (IdentifierType, lowercase(IdentifierValue)).
type IdentityEvidence struct {
	ID              string
	PersonID        string
	SourcePlatform  Platform
	IdentifierType  IdentifierType
	IdentifierValue string
	Confidence      float64
	FirstSeenAt     time.Time
}

// Interaction is one recorded communication event. ExternalReference is
// the source-unique idempotency key across repeated sync runs.
type Interaction struct {
	ID                string
	InteractionType   Platform
	OccurredAt        time.Time
	SourcePlatform    Platform
	ExternalReference string
	SummaryShort      string
	RawContentPointer string
}

// InteractionParticipant joins a Person to an Interaction with a role.
// Unique per (InteractionID, PersonID).
type InteractionParticipant struct {
	InteractionID string
	PersonID      string
	Role          string
}

// SyncState holds the resume cursor for a platform. At most one live
// row per platform.
type SyncState struct {
	Platform             Platform
	LastCursor           string
	LastSuccessTimestamp time.Time
}

// SyncRun records one execution attempt of a source adapter.
type SyncRun struct {
	RunID       string
	Platform    Platform
	StartedAt   time.Time
	CompletedAt time.Time // zero until terminal
	Status      string
	ErrorLog    string
}

// RelationshipInsight caches the synthesized relationship narrative for
// a person.
type RelationshipInsight struct {
	PersonID    string
	Summary     string
	LastUpdated time.Time
}
