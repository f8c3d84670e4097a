package adapters

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/anqer/anqer/internal/enrich"
	"github.com/anqer/anqer/internal/google"
	"github.com/anqer/anqer/internal/identity"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

const gmailPageSize = 30

// Evidence confidence for secondary identifiers found on the same
// external contact record as the primary.
const secondaryEvidenceConfidence = 0.9

// GoogleAdapter runs the two-phase Google sync: contact records build
// the identity graph, then Gmail messages become interactions. The
// session already holds a valid access credential.
type GoogleAdapter struct {
	store      *store.Store
	resolver   *identity.Resolver
	summarizer enrich.Summarizer
	session    *google.Session
	selfName   string
}

func NewGoogleAdapter(s *store.Store, r *identity.Resolver, sum enrich.Summarizer, session *google.Session, selfName string) (*GoogleAdapter, error) {
	if session == nil {
		return nil, fmt.Errorf("authenticated session is required for google adapter")
	}
	if selfName == "" {
		selfName = "Anqer User"
	}
	return &GoogleAdapter{store: s, resolver: r, summarizer: sum, session: session, selfName: selfName}, nil
}

func (a *GoogleAdapter) Name() string             { return "google" }
func (a *GoogleAdapter) Platform() model.Platform { return model.PlatformGoogle }

func (a *GoogleAdapter) Sync(ctx context.Context) (res SyncResult, err error) {
	start := time.Now()
	res.Perf = map[string]string{}

	run := openRun(a.store, a.Platform())
	defer func() { closeRun(a.store, run, err) }()

	// Phase 1: identities from contacts.
	tContacts := time.Now()
	contacts, err := a.session.ListContacts(ctx)
	if err != nil {
		return res, err
	}
	for _, c := range contacts {
		created, serr := a.resolveContact(c)
		if serr != nil {
			res.RecordsSkipped++
			continue
		}
		if created {
			res.PersonsCreated++
		}
	}
	res.Perf["contacts_duration"] = time.Since(tContacts).String()
	res.Perf["contacts_total"] = fmt.Sprintf("%d", len(contacts))

	// Phase 2: interactions from mail, paginated from the persisted
	// cursor.
	tMail := time.Now()
	cursor := ""
	if state, ok := a.store.SyncStateFor(model.PlatformGmail); ok {
		cursor = state.LastCursor
	}
	messages, nextCursor, err := a.session.ListMessages(ctx, gmailPageSize, cursor)
	if err != nil {
		return res, err
	}

	myID, _, err := a.resolver.Resolve(model.PlatformSystem, model.IdentifierPlatformID, "ME", a.selfName)
	if err != nil {
		return res, err
	}

	for _, msg := range messages {
		extRef := "gmail-" + msg.ID
		// Idempotency check against the store, not just this run.
		if a.store.HasInteraction(extRef) {
			res.RecordsSkipped++
			continue
		}

		subject := msg.Header("Subject")
		if subject == "" {
			subject = "No Subject"
		}
		fromRaw := msg.Header("From")
		occurred := time.Now()
		if t, perr := mail.ParseDate(msg.Header("Date")); perr == nil {
			occurred = t
		}

		summary, serr := a.summarizer.Summarize(ctx, fmt.Sprintf("Subject: %s\nSnippet: %s", subject, msg.Snippet))
		if serr != nil {
			err = fmt.Errorf("failed to summarize message %s: %w", msg.ID, serr)
			return res, err
		}
		rawPtr := a.store.SaveRaw(msg.Snippet)

		interaction := model.Interaction{
			ID:                a.store.NewID(),
			InteractionType:   model.PlatformGmail,
			OccurredAt:        occurred,
			SourcePlatform:    model.PlatformGmail,
			ExternalReference: extRef,
			SummaryShort:      summary,
			RawContentPointer: rawPtr,
		}
		if a.store.UpsertInteraction(interaction) {
			senderEmail, senderName := parseFromHeader(fromRaw)
			senderID, created, rerr := a.resolver.Resolve(model.PlatformGmail, model.IdentifierEmail, senderEmail, senderName)
			if rerr == nil {
				if created {
					res.PersonsCreated++
				}
				a.store.UpsertParticipant(model.InteractionParticipant{
					InteractionID: interaction.ID, PersonID: senderID, Role: model.RoleSender,
				})
			}
			a.store.UpsertParticipant(model.InteractionParticipant{
				InteractionID: interaction.ID, PersonID: myID, Role: model.RoleReceiver,
			})
			res.InteractionsCreated++
		} else {
			res.RecordsSkipped++
		}
	}
	res.Perf["mail_duration"] = time.Since(tMail).String()
	res.Perf["messages_total"] = fmt.Sprintf("%d", len(messages))

	// Advance the cursor only after the whole page committed. An empty
	// next token means the listing was exhausted; the cursor resets and
	// the next run re-walks from the newest page, where external
	// references dedupe everything already ingested.
	a.store.UpsertSyncState(model.SyncState{
		Platform:             model.PlatformGmail,
		LastCursor:           nextCursor,
		LastSuccessTimestamp: time.Now(),
	})

	res.Duration = time.Since(start)
	res.Perf["total"] = res.Duration.String()
	return res, nil
}

// resolveContact resolves one external contact record: the primary
// identifier (email preferred over phone) picks or mints the person,
// then every other identifier on the same record is attached as
// secondary evidence. This is the one place distinct identifier values
// are deliberately merged into one person, because the source asserts
// they co-occur on one contact.
func (a *GoogleAdapter) resolveContact(c google.Contact) (created bool, err error) {
	var emails []string
	for _, e := range c.EmailAddresses {
		if v := strings.TrimSpace(strings.ToLower(e.Value)); v != "" {
			emails = append(emails, v)
		}
	}
	var phones []string
	for _, p := range c.PhoneNumbers {
		v := p.CanonicalForm
		if strings.TrimSpace(v) == "" {
			v = p.Value
		}
		if v = strings.TrimSpace(v); v != "" {
			phones = append(phones, v)
		}
	}

	name := "Unknown"
	if len(c.Names) > 0 && strings.TrimSpace(c.Names[0].DisplayName) != "" {
		name = strings.TrimSpace(c.Names[0].DisplayName)
	}

	var pID string
	switch {
	case len(emails) > 0:
		pID, created, err = a.resolver.Resolve(model.PlatformGoogle, model.IdentifierEmail, emails[0], name)
	case len(phones) > 0:
		pID, created, err = a.resolver.Resolve(model.PlatformGoogle, model.IdentifierPhone, phones[0], name)
	default:
		return false, nil
	}
	if err != nil {
		return created, err
	}

	for _, e := range emails[1:] {
		a.resolver.Attach(pID, model.PlatformGoogle, model.IdentifierEmail, e, secondaryEvidenceConfidence)
	}
	for _, p := range phones {
		a.resolver.Attach(pID, model.PlatformGoogle, model.IdentifierPhone, p, secondaryEvidenceConfidence)
	}
	return created, nil
}

// parseFromHeader extracts the address and display name from a From
// header, falling back to the raw string when unparseable.
func parseFromHeader(raw string) (email, name string) {
	if addr, err := mail.ParseAddress(raw); err == nil {
		name = strings.TrimSpace(addr.Name)
		email = strings.TrimSpace(strings.ToLower(addr.Address))
		if name == "" {
			name = email
		}
		return email, name
	}
	raw = strings.TrimSpace(raw)
	return raw, raw
}
