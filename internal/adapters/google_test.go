package adapters

import (
	"testing"

	"github.com/anqer/anqer/internal/google"
	"github.com/anqer/anqer/internal/model"
)

func contactFixture(name string, emails []string, phones []string) google.Contact {
	var c google.Contact
	if name != "" {
		c.Names = append(c.Names, struct {
			DisplayName string `json:"displayName"`
		}{DisplayName: name})
	}
	for _, e := range emails {
		c.EmailAddresses = append(c.EmailAddresses, struct {
			Value string `json:"value"`
		}{Value: e})
	}
	for _, p := range phones {
		c.PhoneNumbers = append(c.PhoneNumbers, struct {
			Value         string `json:"value"`
			CanonicalForm string `json:"canonicalForm"`
		}{Value: p, CanonicalForm: p})
	}
	return c
}

func TestResolveContact_PrimaryAndSecondaryEvidence(t *testing.T) {
	s, r := newHarness()
	a := &GoogleAdapter{store: s, resolver: r}

	created, err := a.resolveContact(contactFixture("Alice Anderson",
		[]string{"alice@example.com", "alice@work.com"},
		[]string{"+15551234567"}))
	if err != nil {
		t.Fatalf("resolveContact: %v", err)
	}
	if !created {
		t.Fatalf("expected a minted person")
	}

	primary, ok := s.FindEvidence(model.IdentifierEmail, "alice@example.com")
	if !ok {
		t.Fatalf("primary evidence missing")
	}

	// Secondary identifiers on the same contact record attach to the same
	// person at reduced confidence.
	for _, tc := range []struct {
		identType model.IdentifierType
		value     string
	}{
		{model.IdentifierEmail, "alice@work.com"},
		{model.IdentifierPhone, "+15551234567"},
	} {
		e, ok := s.FindEvidence(tc.identType, tc.value)
		if !ok {
			t.Fatalf("secondary evidence %s missing", tc.value)
		}
		if e.PersonID != primary.PersonID {
			t.Fatalf("secondary evidence %s points at %s, want %s", tc.value, e.PersonID, primary.PersonID)
		}
		if e.Confidence != secondaryEvidenceConfidence {
			t.Fatalf("secondary confidence = %v, want %v", e.Confidence, secondaryEvidenceConfidence)
		}
	}
}

func TestResolveContact_PhoneOnly(t *testing.T) {
	s, r := newHarness()
	a := &GoogleAdapter{store: s, resolver: r}

	created, err := a.resolveContact(contactFixture("Bob", nil, []string{"+15559876543"}))
	if err != nil {
		t.Fatalf("resolveContact: %v", err)
	}
	if !created {
		t.Fatalf("expected a minted person")
	}
	if _, ok := s.FindEvidence(model.IdentifierPhone, "+15559876543"); !ok {
		t.Fatalf("phone evidence missing")
	}
}

func TestResolveContact_NoIdentifiers(t *testing.T) {
	s, r := newHarness()
	a := &GoogleAdapter{store: s, resolver: r}

	created, err := a.resolveContact(contactFixture("Nameless", nil, nil))
	if err != nil {
		t.Fatalf("resolveContact: %v", err)
	}
	if created {
		t.Fatalf("contact without identifiers must not mint a person")
	}
	if len(s.Persons()) != 0 {
		t.Fatalf("expected no persons, got %d", len(s.Persons()))
	}
}

func TestParseFromHeader(t *testing.T) {
	cases := []struct {
		raw   string
		email string
		name  string
	}{
		{"Alice <Alice@Example.com>", "alice@example.com", "Alice"},
		{"bob@example.com", "bob@example.com", "bob@example.com"},
		{`"Smith, Bob" <bob@example.com>`, "bob@example.com", "Smith, Bob"},
		{"not an address", "not an address", "not an address"},
	}
	for _, tc := range cases {
		email, name := parseFromHeader(tc.raw)
		if email != tc.email || name != tc.name {
			t.Fatalf("parseFromHeader(%q) = (%q, %q), want (%q, %q)",
				tc.raw, email, name, tc.email, tc.name)
		}
	}
}
