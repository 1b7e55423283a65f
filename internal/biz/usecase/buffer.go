package usecase

import (
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
)

// BufferUsecase handles message retention and window queries.
type BufferUsecase struct {
	bufferRepo repo.BufferRepo
}

// NewBufferUsecase creates a new buffer usecase.
func NewBufferUsecase(bufferRepo repo.BufferRepo) *BufferUsecase {
	return &BufferUsecase{bufferRepo: bufferRepo}
}

// Ingest appends one inbound message to its tenant's buffer. The platform
// adapter filters bot senders and digest-channel traffic before this point.
func (uc *BufferUsecase) Ingest(tenantID string, msg domain.Message) {
	msg.Timestamp = msg.Timestamp.UTC()
	uc.bufferRepo.Append(tenantID, msg)
}

// Window returns the per-channel message groups inside the lookback.
func (uc *BufferUsecase) Window(tenantID string, lookback time.Duration) []domain.ChannelWindow {
	return uc.bufferRepo.QueryRange(tenantID, lookback)
}

// ManualWindow is the on-demand query path. The operator-chosen lookback is
// clamped to [1, RetentionHours] hours; anything beyond the retention
// horizon cannot be answered anyway.
func (uc *BufferUsecase) ManualWindow(tenantID string, hours int) ([]domain.ChannelWindow, int) {
	if hours < 1 {
		hours = 1
	}
	if hours > domain.RetentionHours {
		hours = domain.RetentionHours
	}
	return uc.bufferRepo.QueryRange(tenantID, time.Duration(hours)*time.Hour), hours
}

// Prune removes everything older than the retention horizon.
func (uc *BufferUsecase) Prune() int {
	return uc.bufferRepo.PruneOlderThan(domain.RetentionHours * time.Hour)
}

// DropTenant discards all buffered messages for one tenant.
func (uc *BufferUsecase) DropTenant(tenantID string) {
	uc.bufferRepo.DropTenant(tenantID)
}

// DropOrphans discards buffers for tenants outside the live set.
func (uc *BufferUsecase) DropOrphans(live map[string]bool) []string {
	return uc.bufferRepo.DropOrphans(live)
}

// Stats returns per-channel buffered counts for status reporting.
func (uc *BufferUsecase) Stats(tenantID string) ([]repo.ChannelStat, int) {
	return uc.bufferRepo.Stats(tenantID)
}
