// Package timeline renders a person's interaction history and the
// synthesized relationship narrative.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/anqer/anqer/internal/enrich"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// InsightCache persists relationship narratives across processes.
// Implemented by the sqlite durable store; nil disables caching.
type InsightCache interface {
	UpsertInsight(model.RelationshipInsight) error
	GetInsight(personID string) (model.RelationshipInsight, bool, error)
}

// How long a cached narrative stays fresh before it is resynthesized.
const insightTTL = 24 * time.Hour

// Service answers timeline queries over the entity store.
type Service struct {
	store      *store.Store
	summarizer enrich.Summarizer
	insights   InsightCache
}

func NewService(s *store.Store, sum enrich.Summarizer, insights InsightCache) *Service {
	return &Service{store: s, summarizer: sum, insights: insights}
}

// Entries returns a person's interactions newest-first.
func (s *Service) Entries(personID string) ([]model.Interaction, error) {
	if _, ok := s.store.Person(personID); !ok {
		return nil, fmt.Errorf("unknown person %s", personID)
	}
	return s.store.InteractionsForPerson(personID), nil
}

// Narrative synthesizes (or returns the cached) relationship dossier
// for a person from their interaction summaries.
func (s *Service) Narrative(ctx context.Context, personID string, refresh bool) (string, error) {
	if _, ok := s.store.Person(personID); !ok {
		return "", fmt.Errorf("unknown person %s", personID)
	}

	if !refresh && s.insights != nil {
		if cached, found, err := s.insights.GetInsight(personID); err == nil && found {
			if time.Since(cached.LastUpdated) < insightTTL {
				return cached.Summary, nil
			}
		}
	}

	interactions := s.store.InteractionsForPerson(personID)
	var summaries []string
	for _, in := range interactions {
		if in.SummaryShort != "" {
			summaries = append(summaries, in.SummaryShort)
		}
	}

	narrative, err := s.summarizer.SummarizeRelationship(ctx, summaries)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize narrative: %w", err)
	}

	if s.insights != nil {
		if err := s.insights.UpsertInsight(model.RelationshipInsight{
			PersonID:    personID,
			Summary:     narrative,
			LastUpdated: time.Now(),
		}); err != nil {
			// Cache miss on the next call is the only consequence.
			fmt.Printf("warning: failed to cache narrative: %v\n", err)
		}
	}

	return narrative, nil
}

// DayStats holds aggregated interaction counts for a single day.
type DayStats struct {
	Date       string // YYYY-MM-DD
	Total      int
	ByPlatform map[model.Platform]int
}

// Range specifies what time period to query.
type Range struct {
	Start time.Time
	End   time.Time
}

// DailyActivity aggregates a person's interactions per day within the
// range, newest day first.
func (s *Service) DailyActivity(personID string, r Range) ([]DayStats, error) {
	interactions, err := s.Entries(personID)
	if err != nil {
		return nil, err
	}

	dayMap := make(map[string]*DayStats)
	var days []string
	for _, in := range interactions {
		if in.OccurredAt.Before(r.Start) || !in.OccurredAt.Before(r.End) {
			continue
		}
		day := in.OccurredAt.Format("2006-01-02")
		if _, ok := dayMap[day]; !ok {
			dayMap[day] = &DayStats{Date: day, ByPlatform: make(map[model.Platform]int)}
			days = append(days, day)
		}
		dayMap[day].Total++
		dayMap[day].ByPlatform[in.SourcePlatform]++
	}

	out := make([]DayStats, 0, len(days))
	for _, day := range days {
		out = append(out, *dayMap[day])
	}
	return out, nil
}

// ParseRangeArg parses a period argument into a range.
// Supports: "YYYY-MM-DD" (single day), "YYYY-MM" (month), "YYYY" (year)
func ParseRangeArg(arg string) (Range, error) {
	if t, err := time.Parse("2006-01-02", arg); err == nil {
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
		return Range{Start: start, End: start.AddDate(0, 0, 1)}, nil
	}
	if t, err := time.Parse("2006-01", arg); err == nil {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.Local)
		return Range{Start: start, End: start.AddDate(0, 1, 0)}, nil
	}
	if t, err := time.Parse("2006", arg); err == nil {
		start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.Local)
		return Range{Start: start, End: start.AddDate(1, 0, 0)}, nil
	}
	return Range{}, fmt.Errorf("invalid date format '%s'. Use YYYY-MM-DD, YYYY-MM, or YYYY", arg)
}
