package data

import (
	"sort"
	"sync"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
)

// bufferRepo is the in-memory retention buffer. Messages live in
// per-(tenant, channel) slices in arrival order; ingestion appends with the
// current instant, so arrival order is timestamp order and both pruning and
// range queries reduce to cutting the slice at one index.
type bufferRepo struct {
	mu      sync.RWMutex
	tenants map[string]*tenantBuffer
	now     func() time.Time // injectable clock for tests
}

type tenantBuffer struct {
	channels map[string]*channelBuffer
	order    []string // channel ids in first-appended order
}

type channelBuffer struct {
	name string
	msgs []domain.Message
}

// NewBufferRepo creates an empty in-memory message buffer.
func NewBufferRepo() repo.BufferRepo {
	return &bufferRepo{
		tenants: make(map[string]*tenantBuffer),
		now:     time.Now,
	}
}

// NewBufferRepoWithClock creates a buffer with a custom clock.
func NewBufferRepoWithClock(now func() time.Time) repo.BufferRepo {
	return &bufferRepo{
		tenants: make(map[string]*tenantBuffer),
		now:     now,
	}
}

// Append stores a message at the tail of its channel sequence.
func (r *bufferRepo) Append(tenantID string, msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tb, ok := r.tenants[tenantID]
	if !ok {
		tb = &tenantBuffer{channels: make(map[string]*channelBuffer)}
		r.tenants[tenantID] = tb
	}

	cb, ok := tb.channels[msg.ChannelID]
	if !ok {
		cb = &channelBuffer{name: msg.ChannelName}
		tb.channels[msg.ChannelID] = cb
		tb.order = append(tb.order, msg.ChannelID)
	}
	cb.name = msg.ChannelName // follow renames

	// Platform-supplied instants can regress (clock skew, replayed events
	// after a reconnect). Clamp to the tail so the sequence stays
	// time-ordered; the binary search and prefix pruning depend on it.
	if n := len(cb.msgs); n > 0 && msg.Timestamp.Before(cb.msgs[n-1].Timestamp) {
		msg.Timestamp = cb.msgs[n-1].Timestamp
	}
	cb.msgs = append(cb.msgs, msg)
}

// QueryRange returns per-channel windows of messages strictly newer than
// now-lookback. Channels with no qualifying messages are omitted.
func (r *bufferRepo) QueryRange(tenantID string, lookback time.Duration) []domain.ChannelWindow {
	cutoff := r.now().UTC().Add(-lookback)

	r.mu.RLock()
	defer r.mu.RUnlock()

	tb, ok := r.tenants[tenantID]
	if !ok {
		return nil
	}

	var windows []domain.ChannelWindow
	for _, chID := range tb.order {
		cb := tb.channels[chID]
		// Messages are time-ordered; find the first one after the cutoff.
		i := sort.Search(len(cb.msgs), func(i int) bool {
			return cb.msgs[i].Timestamp.After(cutoff)
		})
		if i == len(cb.msgs) {
			continue
		}
		window := make([]domain.Message, len(cb.msgs)-i)
		copy(window, cb.msgs[i:])
		windows = append(windows, domain.ChannelWindow{
			ChannelID:   chID,
			ChannelName: cb.name,
			Messages:    window,
		})
	}
	return windows
}

// PruneOlderThan trims the leading run of messages older than now-horizon
// from every channel and returns how many were removed.
func (r *bufferRepo) PruneOlderThan(horizon time.Duration) int {
	cutoff := r.now().UTC().Add(-horizon)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, tb := range r.tenants {
		for _, cb := range tb.channels {
			i := 0
			for i < len(cb.msgs) && cb.msgs[i].Timestamp.Before(cutoff) {
				i++
			}
			if i > 0 {
				removed += i
				cb.msgs = append(cb.msgs[:0:0], cb.msgs[i:]...)
			}
		}
	}
	return removed
}

// DropTenant removes all buffered state for one tenant.
func (r *bufferRepo) DropTenant(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, tenantID)
}

// DropOrphans removes buffered state for tenants not in the live set.
func (r *bufferRepo) DropOrphans(live map[string]bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []string
	for id := range r.tenants {
		if !live[id] {
			delete(r.tenants, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Stats returns per-channel buffered counts, largest first, plus the total.
func (r *bufferRepo) Stats(tenantID string) ([]repo.ChannelStat, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tb, ok := r.tenants[tenantID]
	if !ok {
		return nil, 0
	}

	var stats []repo.ChannelStat
	total := 0
	for _, chID := range tb.order {
		cb := tb.channels[chID]
		if len(cb.msgs) == 0 {
			continue
		}
		stats = append(stats, repo.ChannelStat{
			ChannelID:   chID,
			ChannelName: cb.name,
			Count:       len(cb.msgs),
		})
		total += len(cb.msgs)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	return stats, total
}
