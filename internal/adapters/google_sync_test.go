package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anqer/anqer/internal/google"
	"github.com/anqer/anqer/internal/model"
)

// googleFixture serves canned People/Gmail responses and records the
// page tokens the adapter asks for.
type googleFixture struct {
	server     *httptest.Server
	pageTokens []string
}

func newGoogleFixture(t *testing.T) *googleFixture {
	t.Helper()
	f := &googleFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/people/me/connections", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"connections":[
			{"names":[{"displayName":"Alice Anderson"}],
			 "emailAddresses":[{"value":"alice@example.com"}],
			 "phoneNumbers":[{"value":"+15551234567","canonicalForm":"+15551234567"}]}
		]}`)
	})
	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		token := r.URL.Query().Get("pageToken")
		f.pageTokens = append(f.pageTokens, token)
		if token == "" {
			// First page points at a follow-up page.
			fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"page-2"}`)
			return
		}
		// Final page: same ids, listing exhausted.
		fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"m2"}]}`)
	})
	mux.HandleFunc("/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/users/me/messages/")
		fmt.Fprintf(w, `{"id":%q,"snippet":"snippet for %s","payload":{"headers":[
			{"name":"Subject","value":"Lunch %s"},
			{"name":"From","value":"Alice <alice@example.com>"},
			{"name":"Date","value":"Mon, 02 Feb 2026 15:04:05 +0000"}
		]}}`, id, id, id)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *googleFixture) session(t *testing.T) *google.Session {
	t.Helper()
	s, err := google.NewSessionWithEndpoints("test-token", f.server.URL, f.server.URL)
	if err != nil {
		t.Fatalf("NewSessionWithEndpoints: %v", err)
	}
	return s
}

func TestGoogleSync_IngestsAndAdvancesCursor(t *testing.T) {
	s, r := newHarness()
	fx := newGoogleFixture(t)

	a, err := NewGoogleAdapter(s, r, &fakeSummarizer{}, fx.session(t), "Tyler")
	if err != nil {
		t.Fatalf("NewGoogleAdapter: %v", err)
	}

	res, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if res.InteractionsCreated != 2 {
		t.Fatalf("expected 2 interactions, got %d", res.InteractionsCreated)
	}
	// The contact mints Alice; the mail sender resolves to her evidence.
	if res.PersonsCreated != 1 {
		t.Fatalf("expected 1 person created, got %d", res.PersonsCreated)
	}
	for _, ref := range []string{"gmail-m1", "gmail-m2"} {
		if !s.HasInteraction(ref) {
			t.Fatalf("expected interaction %s", ref)
		}
	}

	// Each mail interaction links exactly one sender and one receiver.
	alice, ok := s.FindEvidence(model.IdentifierEmail, "alice@example.com")
	if !ok {
		t.Fatalf("no evidence for alice")
	}
	interactions := s.InteractionsForPerson(alice.PersonID)
	if len(interactions) != 2 {
		t.Fatalf("expected 2 interactions for alice, got %d", len(interactions))
	}
	for _, in := range interactions {
		if got := len(s.ParticipantsFor(in.ID)); got != 2 {
			t.Fatalf("interaction %s has %d participants, want 2", in.ID, got)
		}
	}

	// The cursor persists the next page token for the following run.
	state, ok := s.SyncStateFor(model.PlatformGmail)
	if !ok {
		t.Fatalf("expected a gmail sync state")
	}
	if state.LastCursor != "page-2" {
		t.Fatalf("cursor = %q, want page-2", state.LastCursor)
	}

	runs := s.SyncRuns()
	if len(runs) != 1 || runs[0].Status != model.RunStatusCompleted {
		t.Fatalf("expected one completed run, got %+v", runs)
	}
}

func TestGoogleSync_ReplayIsIdempotent(t *testing.T) {
	s, r := newHarness()
	fx := newGoogleFixture(t)

	a, _ := NewGoogleAdapter(s, r, &fakeSummarizer{}, fx.session(t), "Tyler")
	if _, err := a.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	before := s.InteractionCount()

	res, err := a.Sync(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.InteractionsCreated != 0 {
		t.Fatalf("replay created %d interactions, want 0", res.InteractionsCreated)
	}
	if res.RecordsSkipped < 2 {
		t.Fatalf("replay skipped %d records, want >= 2", res.RecordsSkipped)
	}
	if got := s.InteractionCount(); got != before {
		t.Fatalf("interaction count changed on replay: %d -> %d", before, got)
	}

	// The second run resumed from the persisted cursor.
	if len(fx.pageTokens) != 2 || fx.pageTokens[1] != "page-2" {
		t.Fatalf("page tokens requested = %v, want [\"\" page-2]", fx.pageTokens)
	}

	// Exhausted listing resets the cursor; idempotency keys make the
	// re-walk on the following run a no-op.
	state, _ := s.SyncStateFor(model.PlatformGmail)
	if state.LastCursor != "" {
		t.Fatalf("cursor after final page = %q, want empty", state.LastCursor)
	}
}

func TestGoogleSync_SummarizerFailureFailsRun(t *testing.T) {
	s, r := newHarness()
	fx := newGoogleFixture(t)

	sum := &fakeSummarizer{failAfter: 1}
	a, _ := NewGoogleAdapter(s, r, sum, fx.session(t), "Tyler")

	_, err := a.Sync(context.Background())
	if err == nil {
		t.Fatalf("expected sync to fail when the summarizer fails")
	}

	// The first message committed before the failure is retained.
	if s.InteractionCount() != 1 {
		t.Fatalf("expected 1 interaction retained, got %d", s.InteractionCount())
	}

	// No cursor advance on a failed run.
	if _, ok := s.SyncStateFor(model.PlatformGmail); ok {
		t.Fatalf("failed run must not advance the cursor")
	}

	runs := s.SyncRuns()
	if len(runs) != 1 {
		t.Fatalf("expected 1 sync run, got %d", len(runs))
	}
	if runs[0].Status != model.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", runs[0].Status)
	}
	if runs[0].ErrorLog == "" {
		t.Fatalf("failed run must carry an error log")
	}
}

func TestGoogleSync_CredentialRejected(t *testing.T) {
	s, r := newHarness()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	session, err := google.NewSessionWithEndpoints("expired-token", srv.URL, srv.URL)
	if err != nil {
		t.Fatalf("NewSessionWithEndpoints: %v", err)
	}
	a, _ := NewGoogleAdapter(s, r, &fakeSummarizer{}, session, "Tyler")

	_, err = a.Sync(context.Background())
	if err == nil {
		t.Fatalf("expected sync to fail on a rejected credential")
	}
	if !strings.Contains(err.Error(), "credential rejected") {
		t.Fatalf("unexpected error %v", err)
	}

	runs := s.SyncRuns()
	if len(runs) != 1 || runs[0].Status != model.RunStatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}
