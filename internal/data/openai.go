package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
	"github.com/anthropics/feishu-digest-bot/internal/conf"

	openai "github.com/sashabaranov/go-openai"
)

// summarizerRepo calls an OpenAI-compatible chat completion endpoint.
// One call per invocation, bounded by the configured timeout; retry and
// fallback policy live in the digest usecase.
type summarizerRepo struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewSummarizerRepo creates the OpenAI-backed summarizer.
func NewSummarizerRepo(cfg conf.OpenAIConfig) repo.SummarizerRepo {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &summarizerRepo{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Summarize sends the combined conversation document and returns the
// narrative text.
func (r *summarizerRepo) Summarize(ctx context.Context, document string, isWeekly bool, tenantName string) (string, error) {
	system, userPrefix := conf.BuildSummaryPrompts(tenantName, isWeekly)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: userPrefix + document},
		},
		Temperature: 0.3,
		MaxTokens:   3000,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	narrative := strings.TrimSpace(resp.Choices[0].Message.Content)
	if narrative == "" {
		return "", fmt.Errorf("empty completion")
	}
	return narrative, nil
}
