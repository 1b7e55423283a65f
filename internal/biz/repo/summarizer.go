package repo

import "context"

// SummarizerRepo is the external text-generation service. One invocation
// issues exactly one network call, bounded by the configured timeout.
// Retry and fallback policy belong to the caller.
type SummarizerRepo interface {
	Summarize(ctx context.Context, document string, isWeekly bool, tenantName string) (string, error)
}
