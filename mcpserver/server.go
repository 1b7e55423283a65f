// Package mcpserver exposes the on-demand digest query surface as MCP
// tools over streamable HTTP, for operator tooling and agents. It reads
// the same buffer and composer the scheduled pipeline uses; nothing here
// delivers to chat.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
)

// DigestMCPServer provides MCP tools over the manual query boundary.
type DigestMCPServer struct {
	server   *mcp.Server
	bufferUC *usecase.BufferUsecase
	digestUC *usecase.DigestUsecase
	tenantUC *usecase.TenantUsecase
	usage    *usecase.UsageCounter
	model    string
}

// NewServer creates a new digest MCP server and registers its tools.
func NewServer(bufferUC *usecase.BufferUsecase, digestUC *usecase.DigestUsecase, tenantUC *usecase.TenantUsecase, usage *usecase.UsageCounter, model string) *DigestMCPServer {
	s := &DigestMCPServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "digest-tools",
			Version: "v1.0.0",
		}, nil),
		bufferUC: bufferUC,
		digestUC: digestUC,
		tenantUC: tenantUC,
		usage:    usage,
		model:    model,
	}
	s.registerTools()
	return s
}

func (s *DigestMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "digest_preview",
		Description: "Generate a digest for one tenant over a lookback window without delivering it. Lookback is clamped to [1,168] hours.",
	}, s.handleDigestPreview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "buffer_status",
		Description: "Report buffered message counts per channel for one tenant.",
	}, s.handleBufferStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "api_usage",
		Description: "Report today's summarization call count and the configured model.",
	}, s.handleAPIUsage)
}

// DigestPreviewInput is the input for the digest_preview tool.
type DigestPreviewInput struct {
	TenantID string `json:"tenant_id" jsonschema:"The tenant (organization) to summarize"`
	Hours    int    `json:"hours,omitempty" jsonschema:"Lookback in hours (default 24, clamped to [1,168])"`
}

// DigestPreviewOutput is the output for the digest_preview tool.
type DigestPreviewOutput struct {
	TotalMessages  int    `json:"total_messages"`
	AuthorCount    int    `json:"author_count"`
	ActiveChannels int    `json:"active_channels"`
	Narrative      string `json:"narrative"`
	Fallback       bool   `json:"fallback"`
	Error          string `json:"error,omitempty"`
}

func (s *DigestMCPServer) handleDigestPreview(ctx context.Context, req *mcp.CallToolRequest, input DigestPreviewInput) (*mcp.CallToolResult, DigestPreviewOutput, error) {
	if input.TenantID == "" {
		return nil, DigestPreviewOutput{Error: "tenant_id is required"}, nil
	}
	hours := input.Hours
	if hours == 0 {
		hours = 24
	}

	// Prompts address the tenant by its registered display name.
	tenantName := input.TenantID
	if t, err := s.tenantUC.Get(ctx, input.TenantID); err == nil && t != nil {
		tenantName = t.Name
	}

	groups, hours := s.bufferUC.ManualWindow(input.TenantID, hours)
	title := fmt.Sprintf("Last %d hours digest", hours)
	res := s.digestUC.Compose(ctx, groups, hours >= domain.RetentionHours, tenantName, title, "blue")

	return nil, DigestPreviewOutput{
		TotalMessages:  res.TotalMessages,
		AuthorCount:    res.AuthorCount,
		ActiveChannels: res.ActiveChannels,
		Narrative:      res.Narrative,
		Fallback:       res.Fallback,
	}, nil
}

// BufferStatusInput is the input for the buffer_status tool.
type BufferStatusInput struct {
	TenantID string `json:"tenant_id" jsonschema:"The tenant (organization) to inspect"`
}

// ChannelStatus is one channel's buffered count.
type ChannelStatus struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

// BufferStatusOutput is the output for the buffer_status tool.
type BufferStatusOutput struct {
	Total    int             `json:"total"`
	Channels []ChannelStatus `json:"channels"`
	Error    string          `json:"error,omitempty"`
}

func (s *DigestMCPServer) handleBufferStatus(ctx context.Context, req *mcp.CallToolRequest, input BufferStatusInput) (*mcp.CallToolResult, BufferStatusOutput, error) {
	if input.TenantID == "" {
		return nil, BufferStatusOutput{Error: "tenant_id is required"}, nil
	}

	stats, total := s.bufferUC.Stats(input.TenantID)
	out := BufferStatusOutput{Total: total}
	for _, st := range stats {
		out.Channels = append(out.Channels, ChannelStatus{Channel: st.ChannelName, Count: st.Count})
	}
	return nil, out, nil
}

// APIUsageInput is empty - no input needed.
type APIUsageInput struct{}

// APIUsageOutput is the output for the api_usage tool.
type APIUsageOutput struct {
	CallsToday int    `json:"calls_today"`
	Model      string `json:"model"`
}

func (s *DigestMCPServer) handleAPIUsage(ctx context.Context, req *mcp.CallToolRequest, input APIUsageInput) (*mcp.CallToolResult, APIUsageOutput, error) {
	return nil, APIUsageOutput{CallsToday: s.usage.Today(), Model: s.model}, nil
}

// Serve runs the MCP server over streamable HTTP until ctx is canceled.
func (s *DigestMCPServer) Serve(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("[MCP] Listening on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
