package adapters

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/anqer/anqer/internal/enrich"
	"github.com/anqer/anqer/internal/identity"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// WhatsAppAdapter ingests an exported chat archive. Messages are
// grouped by (calendar day, sender), so one Interaction represents an
// entire day's message volume from one counterpart. This bounds
// interaction volume and gives the summarizer day-level context.
type WhatsAppAdapter struct {
	store      *store.Store
	resolver   *identity.Resolver
	summarizer enrich.Summarizer
	selfName   string
	archive    string
}

func NewWhatsAppAdapter(s *store.Store, r *identity.Resolver, sum enrich.Summarizer, selfName, archivePath string) (*WhatsAppAdapter, error) {
	if strings.TrimSpace(archivePath) == "" {
		return nil, fmt.Errorf("archive path is required for whatsapp adapter")
	}
	if selfName == "" {
		selfName = "Anqer User"
	}
	return &WhatsAppAdapter{
		store:      s,
		resolver:   r,
		summarizer: sum,
		selfName:   selfName,
		archive:    archivePath,
	}, nil
}

func (a *WhatsAppAdapter) Name() string             { return "whatsapp" }
func (a *WhatsAppAdapter) Platform() model.Platform { return model.PlatformWhatsApp }

func (a *WhatsAppAdapter) Sync(ctx context.Context) (res SyncResult, err error) {
	start := time.Now()
	res.Perf = map[string]string{}

	run := openRun(a.store, a.Platform())
	defer func() { closeRun(a.store, run, err) }()

	if !strings.HasSuffix(strings.ToLower(a.archive), ".zip") {
		return res, fmt.Errorf("whatsapp import requires a .zip archive")
	}

	content, err := readTranscript(a.archive)
	if err != nil {
		return res, err
	}

	myID, _, err := a.resolver.Resolve(model.PlatformSystem, model.IdentifierPlatformID, "ME", a.selfName)
	if err != nil {
		return res, err
	}

	// Group matching lines by day, then by sender. Non-matching lines
	// are silently dropped.
	tParse := time.Now()
	groups := map[string]map[string][]string{}
	days := map[string]time.Time{}
	for _, line := range strings.Split(content, "\n") {
		parsed, ok := ParseChatLine(line)
		if !ok {
			continue
		}
		sender := parsed.Sender
		// System notices ("X changed the subject") and garbage senders.
		if len(sender) > 50 || strings.Contains(sender, " changed ") {
			continue
		}
		key := parsed.DayKey()
		if groups[key] == nil {
			groups[key] = map[string][]string{}
			days[key] = parsed.Day
		}
		groups[key][sender] = append(groups[key][sender], parsed.Text)
	}
	res.Perf["parse_duration"] = time.Since(tParse).String()
	res.Perf["days_grouped"] = fmt.Sprintf("%d", len(groups))

	dayKeys := make([]string, 0, len(groups))
	for k := range groups {
		dayKeys = append(dayKeys, k)
	}
	sort.Strings(dayKeys)

	for _, dayKey := range dayKeys {
		senders := make([]string, 0, len(groups[dayKey]))
		for s := range groups[dayKey] {
			senders = append(senders, s)
		}
		sort.Strings(senders)

		for _, sender := range senders {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				return res, err
			default:
			}

			if a.isSelf(sender) {
				continue
			}

			extRef := fmt.Sprintf("wa-%s-%s", dayKey, sanitizeSender(sender))
			if a.store.HasInteraction(extRef) {
				res.RecordsSkipped++
				continue
			}

			contactID, created, rerr := a.resolver.Resolve(model.PlatformWhatsApp, model.IdentifierPlatformID, sender, sender)
			if rerr != nil {
				res.RecordsSkipped++
				continue
			}
			if created {
				res.PersonsCreated++
			}

			fullDayText := strings.Join(groups[dayKey][sender], "\n")
			summary, serr := a.summarizer.Summarize(ctx, fmt.Sprintf(
				"Day: %s\nSource: WhatsApp\nParticipants: You and %s\nContent Synthesis:\n%s",
				dayKey, sender, fullDayText))
			if serr != nil {
				err = fmt.Errorf("failed to summarize day %s: %w", dayKey, serr)
				return res, err
			}
			rawPtr := a.store.SaveRaw(fullDayText)

			interaction := model.Interaction{
				ID:                a.store.NewID(),
				InteractionType:   model.PlatformWhatsApp,
				OccurredAt:        days[dayKey],
				SourcePlatform:    model.PlatformWhatsApp,
				ExternalReference: extRef,
				SummaryShort:      summary,
				RawContentPointer: rawPtr,
			}
			if a.store.UpsertInteraction(interaction) {
				a.store.UpsertParticipant(model.InteractionParticipant{
					InteractionID: interaction.ID, PersonID: contactID, Role: model.RoleSender,
				})
				a.store.UpsertParticipant(model.InteractionParticipant{
					InteractionID: interaction.ID, PersonID: myID, Role: model.RoleReceiver,
				})
				res.InteractionsCreated++
			} else {
				res.RecordsSkipped++
			}
		}
	}

	res.Duration = time.Since(start)
	res.Perf["total"] = res.Duration.String()
	return res, nil
}

func (a *WhatsAppAdapter) isSelf(sender string) bool {
	lower := strings.ToLower(sender)
	return lower == "you" || lower == "me" || sender == a.selfName
}

func sanitizeSender(sender string) string {
	return strings.Join(strings.Fields(sender), "_")
}

// readTranscript extracts the transcript from the export archive: the
// first .txt entry that is not macOS resource-fork noise.
func readTranscript(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".txt") || strings.HasPrefix(f.Name, "__") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open transcript entry: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read transcript: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("chat log not found in archive")
}
