package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
)

// Fanout runs one schedule trigger across all deliverable tenants. Each
// tenant is an independent unit of work: a failure (or panic) in one
// tenant's path is logged and never cancels or fails its siblings.
type Fanout struct {
	tenantUC *usecase.TenantUsecase
	bufferUC *usecase.BufferUsecase
	digestUC *usecase.DigestUsecase
	delivery repo.DeliveryRepo

	parallel bool
}

// NewFanout creates a new tenant fan-out.
func NewFanout(tenantUC *usecase.TenantUsecase, bufferUC *usecase.BufferUsecase, digestUC *usecase.DigestUsecase, delivery repo.DeliveryRepo, parallel bool) *Fanout {
	return &Fanout{
		tenantUC: tenantUC,
		bufferUC: bufferUC,
		digestUC: digestUC,
		delivery: delivery,
		parallel: parallel,
	}
}

// RunAll generates and delivers the digest described by entry for every
// enabled tenant with a bound digest channel. It returns when every
// tenant's unit has finished.
func (f *Fanout) RunAll(ctx context.Context, entry domain.ScheduleEntry) {
	tenants, err := f.tenantUC.ListDeliverable(ctx)
	if err != nil {
		fmt.Printf("[Fanout] Failed to list tenants: %v\n", err)
		return
	}
	if len(tenants) == 0 {
		fmt.Printf("[Fanout] %s: no deliverable tenants\n", entry.Label)
		return
	}

	if f.parallel {
		fmt.Printf("[Fanout] %s: summarizing %d tenants concurrently\n", entry.Label, len(tenants))
		var wg sync.WaitGroup
		for _, t := range tenants {
			wg.Add(1)
			go func(t *domain.TenantConfig) {
				defer wg.Done()
				f.runSafe(ctx, t, entry)
			}(t)
		}
		wg.Wait()
		return
	}

	fmt.Printf("[Fanout] %s: summarizing %d tenants sequentially\n", entry.Label, len(tenants))
	for _, t := range tenants {
		f.runSafe(ctx, t, entry)
	}
}

// runSafe isolates one tenant's run from its siblings.
func (f *Fanout) runSafe(ctx context.Context, t *domain.TenantConfig, entry domain.ScheduleEntry) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Fanout] Panic in tenant %s run: %v\n", t.TenantID, r)
		}
	}()
	if err := f.RunOne(ctx, t, entry); err != nil {
		fmt.Printf("[Fanout] Tenant %s (%s) failed: %v\n", t.TenantID, t.Name, err)
	}
}

// RunOne executes the full pipeline for one tenant: window query, digest
// composition, delivery. An empty window skips the run with only a log
// entry; no summarization or delivery call is made.
func (f *Fanout) RunOne(ctx context.Context, t *domain.TenantConfig, entry domain.ScheduleEntry) error {
	groups := f.bufferUC.Window(t.TenantID, entry.Lookback())
	if len(groups) == 0 {
		fmt.Printf("[Fanout] %s: no new messages for %s, skipping\n", t.Name, entry.Label)
		return nil
	}

	res := f.digestUC.Compose(ctx, groups, entry.Weekly, t.Name, entry.Label, entry.Color)
	if res.Empty {
		fmt.Printf("[Fanout] %s: empty digest for %s, skipping delivery\n", t.Name, entry.Label)
		return nil
	}

	if err := f.delivery.PostDigest(ctx, t.DigestChannelID, res); err != nil {
		if errors.Is(err, repo.ErrPermission) {
			fmt.Printf("[Fanout] %s: no permission to post digest: %v\n", t.Name, err)
			return nil
		}
		return fmt.Errorf("post digest: %w", err)
	}

	fmt.Printf("[Fanout] Posted %s to %s (%d messages)\n", entry.Label, t.Name, res.TotalMessages)
	return nil
}
