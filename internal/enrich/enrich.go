// Package enrich defines the enrichment port: short natural-language
// summaries for ingested interactions and synthesized relationship
// narratives. Ingestion must never block on enrichment availability,
// so implementations return sentinel strings instead of errors when no
// credential is configured.
package enrich

import "context"

// Summarizer is the enrichment port consumed by adapters and the
// timeline layer.
type Summarizer interface {
	// Summarize produces a short summary of one interaction's text.
	Summarize(ctx context.Context, text string) (string, error)

	// SummarizeRelationship synthesizes a narrative from a person's
	// interaction summaries.
	SummarizeRelationship(ctx context.Context, summaries []string) (string, error)
}

// Sentinel strings returned when the enrichment service cannot run.
const (
	SentinelNoKey       = "API key not configured."
	SentinelUnavailable = "Intelligence services unavailable."
	SentinelNoHistory   = "No interaction history found."
)

// Unavailable is a Summarizer that always degrades to sentinels. Used
// when no credential is configured so ingestion proceeds regardless.
type Unavailable struct{}

func (Unavailable) Summarize(ctx context.Context, text string) (string, error) {
	return SentinelNoKey, nil
}

func (Unavailable) SummarizeRelationship(ctx context.Context, summaries []string) (string, error) {
	return SentinelUnavailable, nil
}
