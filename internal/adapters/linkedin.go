package adapters

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anqer/anqer/internal/identity"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// LinkedInAdapter ingests a connections CSV export. This source is
// identity-enrichment only: each row resolves a person, no interactions
// are produced.
type LinkedInAdapter struct {
	store    *store.Store
	resolver *identity.Resolver
	input    io.Reader
}

func NewLinkedInAdapter(s *store.Store, r *identity.Resolver, input io.Reader) (*LinkedInAdapter, error) {
	if input == nil {
		return nil, fmt.Errorf("csv input is required for linkedin adapter")
	}
	return &LinkedInAdapter{store: s, resolver: r, input: input}, nil
}

func (a *LinkedInAdapter) Name() string             { return "linkedin" }
func (a *LinkedInAdapter) Platform() model.Platform { return model.PlatformLinkedIn }

func (a *LinkedInAdapter) Sync(ctx context.Context) (res SyncResult, err error) {
	start := time.Now()

	run := openRun(a.store, a.Platform())
	defer func() { closeRun(a.store, run, err) }()

	r := csv.NewReader(a.input)
	// Exports vary in trailing columns; a field containing a literal
	// comma must be quoted and is not split inside quotes.
	r.FieldsPerRecord = -1

	header := true
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return res, err
		default:
		}

		record, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if _, ok := rerr.(*csv.ParseError); ok {
				// Malformed row: skip it, keep the batch going.
				res.RecordsSkipped++
				continue
			}
			err = fmt.Errorf("failed to read csv: %w", rerr)
			return res, err
		}
		if header {
			header = false
			continue
		}
		if len(record) < 3 {
			res.RecordsSkipped++
			continue
		}

		name := strings.TrimSpace(strings.TrimSpace(record[0]) + " " + strings.TrimSpace(record[1]))
		email := strings.TrimSpace(record[2])
		if email == "" {
			res.RecordsSkipped++
			continue
		}

		_, created, rerr := a.resolver.Resolve(model.PlatformLinkedIn, model.IdentifierEmail, email, name)
		if rerr != nil {
			res.RecordsSkipped++
			continue
		}
		if created {
			res.PersonsCreated++
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}
