package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
)

// TenantUsecase owns the tenant lifecycle: join, leave, destination
// binding, and the enabled flag.
type TenantUsecase struct {
	tenantRepo repo.TenantRepo
	bufferUC   *BufferUsecase
	delivery   repo.DeliveryRepo

	digestChannelName string
}

// NewTenantUsecase creates a new tenant usecase.
func NewTenantUsecase(tenantRepo repo.TenantRepo, bufferUC *BufferUsecase, delivery repo.DeliveryRepo, digestChannelName string) *TenantUsecase {
	return &TenantUsecase{
		tenantRepo:        tenantRepo,
		bufferUC:          bufferUC,
		delivery:          delivery,
		digestChannelName: digestChannelName,
	}
}

// OnTenantJoin registers a tenant the first time the bot sees it. The
// digest channel is bound immediately when the platform allows creating or
// finding it; otherwise the tenant stays silent until an operator binds one.
func (uc *TenantUsecase) OnTenantJoin(ctx context.Context, tenantID, name string) (*domain.TenantConfig, error) {
	existing, err := uc.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	t := &domain.TenantConfig{
		TenantID:  tenantID,
		Name:      name,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	channelID, err := uc.delivery.EnsureDigestChannel(ctx, uc.digestChannelName)
	if err != nil {
		fmt.Printf("[Tenant] Could not bind digest channel for %s: %v\n", tenantID, err)
	} else {
		t.DigestChannelID = channelID
	}

	if err := uc.tenantRepo.Save(ctx, t); err != nil {
		return nil, err
	}
	fmt.Printf("[Tenant] Registered tenant %s (%s), digest channel %q\n", tenantID, name, t.DigestChannelID)
	return t, nil
}

// OnTenantLeave deletes the tenant's configuration and buffered messages.
func (uc *TenantUsecase) OnTenantLeave(ctx context.Context, tenantID string) error {
	uc.bufferUC.DropTenant(tenantID)
	if err := uc.tenantRepo.Delete(ctx, tenantID); err != nil {
		return err
	}
	fmt.Printf("[Tenant] Removed tenant %s\n", tenantID)
	return nil
}

// Get returns one tenant's configuration, or nil if unknown.
func (uc *TenantUsecase) Get(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	return uc.tenantRepo.Get(ctx, tenantID)
}

// ListDeliverable returns enabled tenants with a bound digest channel, in
// registration order.
func (uc *TenantUsecase) ListDeliverable(ctx context.Context) ([]*domain.TenantConfig, error) {
	all, err := uc.tenantRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.TenantConfig
	for _, t := range all {
		if t.Deliverable() {
			out = append(out, t)
		}
	}
	return out, nil
}

// LiveTenantIDs returns the set of registered tenants, used by the
// maintenance pass to drop orphaned buffers.
func (uc *TenantUsecase) LiveTenantIDs(ctx context.Context) (map[string]bool, error) {
	all, err := uc.tenantRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(all))
	for _, t := range all {
		live[t.TenantID] = true
	}
	return live, nil
}

// SetDigestChannel binds a destination chat for scheduled digests.
func (uc *TenantUsecase) SetDigestChannel(ctx context.Context, tenantID, channelID string) error {
	return uc.tenantRepo.SetDigestChannel(ctx, tenantID, channelID)
}

// SetEnabled toggles scheduled digests for one tenant.
func (uc *TenantUsecase) SetEnabled(ctx context.Context, tenantID string, enabled bool) error {
	return uc.tenantRepo.SetEnabled(ctx, tenantID, enabled)
}
