package repo

import (
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// ChannelStat is a per-channel buffer occupancy snapshot.
type ChannelStat struct {
	ChannelID   string
	ChannelName string
	Count       int
}

// BufferRepo is the in-memory retention buffer. Appends come from the
// single ingestion path; queries come from the scheduled fan-out and from
// on-demand commands, possibly concurrently.
type BufferRepo interface {
	// Append stores a message at the tail of its (tenant, channel) sequence.
	// It never fails; the message is immediately visible to queries.
	Append(tenantID string, msg domain.Message)

	// QueryRange returns, per sub-channel, the messages strictly newer than
	// now-lookback (UTC comparison). Channels with no matching messages are
	// omitted. Channel groups come back in first-appended order.
	QueryRange(tenantID string, lookback time.Duration) []domain.ChannelWindow

	// PruneOlderThan trims, per (tenant, channel), the leading run of
	// messages older than now-horizon. Sequences are time-ordered, so this
	// stops at the first message inside the horizon.
	PruneOlderThan(horizon time.Duration) int

	// DropTenant removes all buffered state for one tenant.
	DropTenant(tenantID string)

	// DropOrphans removes buffered state for tenants not in the live set
	// and returns the ids dropped.
	DropOrphans(live map[string]bool) []string

	// Stats returns per-channel buffered counts for one tenant, ordered by
	// count descending, and the total.
	Stats(tenantID string) ([]ChannelStat, int)
}
