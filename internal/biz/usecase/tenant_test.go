package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// mockTenantRepo is an in-memory TenantRepo.
type mockTenantRepo struct {
	tenants map[string]*domain.TenantConfig
	saves   int
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{tenants: make(map[string]*domain.TenantConfig)}
}

func (m *mockTenantRepo) Save(ctx context.Context, t *domain.TenantConfig) error {
	m.saves++
	cp := *t
	m.tenants[t.TenantID] = &cp
	return nil
}

func (m *mockTenantRepo) Get(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	return m.tenants[tenantID], nil
}

func (m *mockTenantRepo) Delete(ctx context.Context, tenantID string) error {
	delete(m.tenants, tenantID)
	return nil
}

func (m *mockTenantRepo) List(ctx context.Context) ([]*domain.TenantConfig, error) {
	var out []*domain.TenantConfig
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTenantRepo) SetDigestChannel(ctx context.Context, tenantID, channelID string) error {
	if t, ok := m.tenants[tenantID]; ok {
		t.DigestChannelID = channelID
	}
	return nil
}

func (m *mockTenantRepo) SetEnabled(ctx context.Context, tenantID string, enabled bool) error {
	if t, ok := m.tenants[tenantID]; ok {
		t.Enabled = enabled
	}
	return nil
}

func (m *mockTenantRepo) Close() error { return nil }

// mockDelivery stubs the platform delivery boundary.
type mockDelivery struct {
	ensureCalls int
	ensureID    string
	ensureErr   error
}

func (m *mockDelivery) PostDigest(ctx context.Context, channelID string, res *domain.DigestResult) error {
	return nil
}

func (m *mockDelivery) SendText(ctx context.Context, channelID, text string) error { return nil }

func (m *mockDelivery) EnsureDigestChannel(ctx context.Context, name string) (string, error) {
	m.ensureCalls++
	return m.ensureID, m.ensureErr
}

func newTenantFixture() (*TenantUsecase, *mockTenantRepo, *mockDelivery, *mockBufferRepo) {
	tenantRepo := newMockTenantRepo()
	delivery := &mockDelivery{ensureID: "chan-digest"}
	buffer := &mockBufferRepo{}
	uc := NewTenantUsecase(tenantRepo, NewBufferUsecase(buffer), delivery, "chat-digest")
	return uc, tenantRepo, delivery, buffer
}

func TestOnTenantJoinRegistersAndBinds(t *testing.T) {
	uc, repo, delivery, _ := newTenantFixture()
	ctx := context.Background()

	tenant, err := uc.OnTenantJoin(ctx, "tenant-a", "Acme")
	if err != nil {
		t.Fatalf("OnTenantJoin failed: %v", err)
	}
	if tenant.DigestChannelID != "chan-digest" {
		t.Errorf("Digest channel not bound: %q", tenant.DigestChannelID)
	}
	if !tenant.Enabled {
		t.Error("New tenants must be enabled by default")
	}
	if delivery.ensureCalls != 1 || repo.saves != 1 {
		t.Errorf("Expected 1 ensure + 1 save, got %d/%d", delivery.ensureCalls, repo.saves)
	}
}

func TestOnTenantJoinIsIdempotent(t *testing.T) {
	uc, repo, delivery, _ := newTenantFixture()
	ctx := context.Background()

	first, err := uc.OnTenantJoin(ctx, "tenant-a", "Acme")
	if err != nil {
		t.Fatalf("First join failed: %v", err)
	}
	second, err := uc.OnTenantJoin(ctx, "tenant-a", "Acme")
	if err != nil {
		t.Fatalf("Second join failed: %v", err)
	}
	if second.TenantID != first.TenantID {
		t.Errorf("Second join returned a different tenant: %+v", second)
	}
	if repo.saves != 1 || delivery.ensureCalls != 1 {
		t.Errorf("Repeat join must not save or re-bind, got %d saves %d ensures", repo.saves, delivery.ensureCalls)
	}
}

func TestOnTenantJoinToleratesBindFailure(t *testing.T) {
	uc, _, delivery, _ := newTenantFixture()
	delivery.ensureID = ""
	delivery.ensureErr = errors.New("no chat:write scope")

	tenant, err := uc.OnTenantJoin(context.Background(), "tenant-a", "Acme")
	if err != nil {
		t.Fatalf("Join must survive a bind failure: %v", err)
	}
	if tenant.DigestChannelID != "" {
		t.Errorf("Expected unbound tenant, got channel %q", tenant.DigestChannelID)
	}
	if tenant.Deliverable() {
		t.Error("Unbound tenant must not be deliverable")
	}
}

func TestOnTenantLeaveDropsState(t *testing.T) {
	uc, repo, _, buffer := newTenantFixture()
	ctx := context.Background()

	if _, err := uc.OnTenantJoin(ctx, "tenant-a", "Acme"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := uc.OnTenantLeave(ctx, "tenant-a"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, ok := repo.tenants["tenant-a"]; ok {
		t.Error("Tenant config must be deleted on leave")
	}
	if buffer.lastTenant != "tenant-a" {
		t.Error("Buffered messages must be dropped on leave")
	}
}

func TestListDeliverableFilters(t *testing.T) {
	uc, repo, _, _ := newTenantFixture()
	ctx := context.Background()

	repo.tenants["a"] = &domain.TenantConfig{TenantID: "a", DigestChannelID: "c1", Enabled: true}
	repo.tenants["b"] = &domain.TenantConfig{TenantID: "b", DigestChannelID: "", Enabled: true}
	repo.tenants["c"] = &domain.TenantConfig{TenantID: "c", DigestChannelID: "c3", Enabled: false}

	out, err := uc.ListDeliverable(ctx)
	if err != nil {
		t.Fatalf("ListDeliverable failed: %v", err)
	}
	if len(out) != 1 || out[0].TenantID != "a" {
		t.Errorf("Expected only tenant a, got %v", out)
	}

	live, err := uc.LiveTenantIDs(ctx)
	if err != nil {
		t.Fatalf("LiveTenantIDs failed: %v", err)
	}
	if len(live) != 3 {
		t.Errorf("Live set must include disabled tenants, got %v", live)
	}
}
