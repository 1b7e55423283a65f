package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
)

// NoMessagesNarrative is the fixed result body when a window is empty.
const NoMessagesNarrative = "There are no messages to summarize."

// DigestUsecase turns grouped messages into a digest: a combined document
// for the summarization call, plus stats computed independently of the
// narrative. Summarization failures degrade to the local keyword summary;
// callers never see an error from Compose.
type DigestUsecase struct {
	summarizer repo.SummarizerRepo
	usage      *UsageCounter

	maxPerChannel int // per-channel input cap for standard runs, doubled weekly
	retryCount    int // extra summarization attempts before falling back
}

// NewDigestUsecase creates a new digest composer.
func NewDigestUsecase(summarizer repo.SummarizerRepo, usage *UsageCounter, maxPerChannel, retryCount int) *DigestUsecase {
	return &DigestUsecase{
		summarizer:    summarizer,
		usage:         usage,
		maxPerChannel: maxPerChannel,
		retryCount:    retryCount,
	}
}

// Compose builds the digest for one tenant's window.
func (uc *DigestUsecase) Compose(ctx context.Context, groups []domain.ChannelWindow, isWeekly bool, tenantName, title, color string) *domain.DigestResult {
	res := &domain.DigestResult{
		Title:       title,
		Color:       color,
		GeneratedAt: time.Now().UTC(),
	}

	uc.fillStats(res, groups, isWeekly)
	if res.TotalMessages == 0 {
		res.Empty = true
		res.Narrative = NoMessagesNarrative
		return res
	}

	document := uc.buildDocument(groups, isWeekly)
	res.Narrative, res.Fallback = uc.summarize(ctx, document, groups, isWeekly, tenantName)
	return res
}

// fillStats computes counts from the full window, independent of the
// per-channel cap applied to the summarization input.
func (uc *DigestUsecase) fillStats(res *domain.DigestResult, groups []domain.ChannelWindow, isWeekly bool) {
	authors := make(map[string]struct{})
	ranked := make([]domain.ChannelCount, 0, len(groups))

	for _, g := range groups {
		if len(g.Messages) == 0 {
			continue
		}
		res.TotalMessages += len(g.Messages)
		res.ActiveChannels++
		for _, msg := range g.Messages {
			authors[msg.Author] = struct{}{}
		}
		ranked = append(ranked, domain.ChannelCount{ChannelName: g.ChannelName, Count: len(g.Messages)})
	}
	res.AuthorCount = len(authors)

	// Stable sort keeps ties in first-encountered channel order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	top := 3
	if isWeekly {
		top = 5
	}
	if len(ranked) > top {
		ranked = ranked[:top]
	}
	res.TopChannels = ranked
}

// buildDocument concatenates per-channel text blocks, capping each channel
// to the most recent maxPerChannel messages (doubled for weekly runs).
func (uc *DigestUsecase) buildDocument(groups []domain.ChannelWindow, isWeekly bool) string {
	maxMessages := uc.maxPerChannel
	if isWeekly {
		maxMessages *= 2
	}

	var blocks []string
	for _, g := range groups {
		if len(g.Messages) == 0 {
			continue
		}
		msgs := g.Messages
		if len(msgs) > maxMessages {
			msgs = msgs[len(msgs)-maxMessages:]
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "\n=== #%s ===\n", g.ChannelName)
		lines := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			line := fmt.Sprintf("%s: %s", msg.Author, msg.Content)
			if msg.Attachments > 0 {
				line += fmt.Sprintf(" [attachments: %d]", msg.Attachments)
			}
			if msg.Embeds > 0 {
				line += fmt.Sprintf(" [embeds: %d]", msg.Embeds)
			}
			lines = append(lines, line)
		}
		sb.WriteString(strings.Join(lines, "\n"))
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}

// summarize invokes the external service within the retry budget and
// degrades to the keyword summary when the budget is exhausted.
func (uc *DigestUsecase) summarize(ctx context.Context, document string, groups []domain.ChannelWindow, isWeekly bool, tenantName string) (narrative string, fallback bool) {
	var lastErr error
	for attempt := 0; attempt <= uc.retryCount; attempt++ {
		narrative, lastErr = uc.summarizer.Summarize(ctx, document, isWeekly, tenantName)
		if lastErr == nil {
			uc.usage.Increment()
			return narrative, false
		}
	}
	fmt.Printf("[Digest] Summarization failed for %s, using keyword fallback: %v\n", tenantName, lastErr)
	return KeywordSummary(groups), true
}
