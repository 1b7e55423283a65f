package repo

import (
	"context"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// TenantRepo persists per-tenant digest configuration.
type TenantRepo interface {
	Save(ctx context.Context, t *domain.TenantConfig) error
	Get(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
	Delete(ctx context.Context, tenantID string) error
	List(ctx context.Context) ([]*domain.TenantConfig, error)
	SetDigestChannel(ctx context.Context, tenantID, channelID string) error
	SetEnabled(ctx context.Context, tenantID string, enabled bool) error
	Close() error
}
