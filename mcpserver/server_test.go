package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
)

type stubBufferRepo struct {
	windows []domain.ChannelWindow
}

func (s *stubBufferRepo) Append(tenantID string, msg domain.Message) {}

func (s *stubBufferRepo) QueryRange(tenantID string, lookback time.Duration) []domain.ChannelWindow {
	return s.windows
}

func (s *stubBufferRepo) PruneOlderThan(horizon time.Duration) int { return 0 }

func (s *stubBufferRepo) DropTenant(tenantID string) {}

func (s *stubBufferRepo) DropOrphans(live map[string]bool) []string { return nil }

func (s *stubBufferRepo) Stats(tenantID string) ([]repo.ChannelStat, int) { return nil, 0 }

type stubTenantRepo struct {
	tenants map[string]*domain.TenantConfig
}

func (s *stubTenantRepo) Save(ctx context.Context, t *domain.TenantConfig) error { return nil }

func (s *stubTenantRepo) Get(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	return s.tenants[tenantID], nil
}

func (s *stubTenantRepo) Delete(ctx context.Context, tenantID string) error { return nil }

func (s *stubTenantRepo) List(ctx context.Context) ([]*domain.TenantConfig, error) {
	return nil, nil
}

func (s *stubTenantRepo) SetDigestChannel(ctx context.Context, tenantID, channelID string) error {
	return nil
}

func (s *stubTenantRepo) SetEnabled(ctx context.Context, tenantID string, enabled bool) error {
	return nil
}

func (s *stubTenantRepo) Close() error { return nil }

type stubDelivery struct{}

func (s *stubDelivery) PostDigest(ctx context.Context, channelID string, res *domain.DigestResult) error {
	return nil
}

func (s *stubDelivery) SendText(ctx context.Context, channelID, text string) error { return nil }

func (s *stubDelivery) EnsureDigestChannel(ctx context.Context, name string) (string, error) {
	return "", nil
}

type recordingSummarizer struct {
	lastTenantName string
}

func (r *recordingSummarizer) Summarize(ctx context.Context, document string, isWeekly bool, tenantName string) (string, error) {
	r.lastTenantName = tenantName
	return "narrative for " + tenantName, nil
}

func newPreviewFixture(tenants map[string]*domain.TenantConfig) (*DigestMCPServer, *recordingSummarizer) {
	buffer := &stubBufferRepo{windows: []domain.ChannelWindow{{
		ChannelID:   "c1",
		ChannelName: "general",
		Messages: []domain.Message{
			{Author: "Alice Tanaka", Content: "release planning tomorrow"},
			{Author: "Bob Suzuki", Content: "rollback finished"},
		},
	}}}
	summ := &recordingSummarizer{}

	bufferUC := usecase.NewBufferUsecase(buffer)
	usage := usecase.NewUsageCounter(time.UTC)
	digestUC := usecase.NewDigestUsecase(summ, usage, 100, 0)
	tenantUC := usecase.NewTenantUsecase(&stubTenantRepo{tenants: tenants}, bufferUC, &stubDelivery{}, "chat-digest")

	return NewServer(bufferUC, digestUC, tenantUC, usage, "gpt-4o-mini"), summ
}

func TestDigestPreviewUsesRegisteredTenantName(t *testing.T) {
	s, summ := newPreviewFixture(map[string]*domain.TenantConfig{
		"ou_t1": {TenantID: "ou_t1", Name: "Acme Workspace", Enabled: true},
	})

	_, out, err := s.handleDigestPreview(context.Background(), nil, DigestPreviewInput{TenantID: "ou_t1"})
	if err != nil {
		t.Fatalf("handleDigestPreview failed: %v", err)
	}
	if summ.lastTenantName != "Acme Workspace" {
		t.Errorf("Prompt tenant name = %q, want the registered display name", summ.lastTenantName)
	}
	if out.TotalMessages != 2 || out.AuthorCount != 2 || out.ActiveChannels != 1 {
		t.Errorf("Unexpected stats: %+v", out)
	}
	if out.Narrative != "narrative for Acme Workspace" {
		t.Errorf("Unexpected narrative: %q", out.Narrative)
	}
}

func TestDigestPreviewUnknownTenantFallsBackToID(t *testing.T) {
	s, summ := newPreviewFixture(nil)

	_, out, err := s.handleDigestPreview(context.Background(), nil, DigestPreviewInput{TenantID: "ou_nope"})
	if err != nil {
		t.Fatalf("handleDigestPreview failed: %v", err)
	}
	if summ.lastTenantName != "ou_nope" {
		t.Errorf("Unregistered tenant must fall back to the id, got %q", summ.lastTenantName)
	}
	if out.Error != "" {
		t.Errorf("Unexpected error output: %q", out.Error)
	}
}

func TestDigestPreviewRequiresTenantID(t *testing.T) {
	s, _ := newPreviewFixture(nil)

	_, out, err := s.handleDigestPreview(context.Background(), nil, DigestPreviewInput{})
	if err != nil {
		t.Fatalf("handleDigestPreview failed: %v", err)
	}
	if out.Error == "" {
		t.Error("Missing tenant_id must be reported in the output")
	}
}
