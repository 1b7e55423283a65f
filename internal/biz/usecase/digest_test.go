package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// mockSummarizer is a scripted SummarizerRepo.
type mockSummarizer struct {
	calls     int
	failFirst int // number of leading calls that return an error
	result    string
	lastDoc   string
	lastIsWk  bool
}

func (m *mockSummarizer) Summarize(ctx context.Context, document string, isWeekly bool, tenantName string) (string, error) {
	m.calls++
	m.lastDoc = document
	m.lastIsWk = isWeekly
	if m.calls <= m.failFirst {
		return "", errors.New("upstream unavailable")
	}
	return m.result, nil
}

func newTestCounter() *UsageCounter {
	return NewUsageCounterWithClock(time.UTC, func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	})
}

// makeWindow builds one window with count messages cycling over authors.
func makeWindow(channel string, count, authors int) domain.ChannelWindow {
	w := domain.ChannelWindow{ChannelID: channel, ChannelName: channel}
	for i := 0; i < count; i++ {
		w.Messages = append(w.Messages, domain.Message{
			Author:  fmt.Sprintf("author-%d", i%authors),
			Content: fmt.Sprintf("msg-%d", i),
		})
	}
	return w
}

func TestComposeSuccess(t *testing.T) {
	summ := &mockSummarizer{result: "People discussed the release."}
	usage := newTestCounter()
	uc := NewDigestUsecase(summ, usage, 100, 2)

	groups := []domain.ChannelWindow{makeWindow("general", 3, 2)}
	res := uc.Compose(context.Background(), groups, false, "acme", "Morning digest", "blue")

	if res.Narrative != "People discussed the release." {
		t.Errorf("Unexpected narrative: %q", res.Narrative)
	}
	if res.Fallback {
		t.Error("Fallback must be false on success")
	}
	if summ.calls != 1 {
		t.Errorf("Expected 1 summarization call, got %d", summ.calls)
	}
	if usage.Today() != 1 {
		t.Errorf("Expected usage count 1, got %d", usage.Today())
	}
	if res.Title != "Morning digest" || res.Color != "blue" {
		t.Errorf("Title/color not carried: %q %q", res.Title, res.Color)
	}
}

func TestComposeStatsIndependentOfCap(t *testing.T) {
	summ := &mockSummarizer{result: "ok"}
	uc := NewDigestUsecase(summ, newTestCounter(), 5, 0)

	// 20 messages from 4 distinct authors in one channel; the cap is 5.
	groups := []domain.ChannelWindow{makeWindow("general", 20, 4)}
	res := uc.Compose(context.Background(), groups, false, "acme", "t", "blue")

	if res.TotalMessages != 20 {
		t.Errorf("TotalMessages must count the full window, got %d", res.TotalMessages)
	}
	if res.AuthorCount != 4 {
		t.Errorf("Expected 4 authors, got %d", res.AuthorCount)
	}
	if res.ActiveChannels != 1 {
		t.Errorf("Expected 1 active channel, got %d", res.ActiveChannels)
	}

	// Only the most recent 5 messages feed the document.
	if !strings.Contains(summ.lastDoc, "msg-19") || !strings.Contains(summ.lastDoc, "msg-15") {
		t.Errorf("Cap must keep the most recent messages: %q", summ.lastDoc)
	}
	if strings.Contains(summ.lastDoc, "msg-14") {
		t.Errorf("Capped-out message leaked into document: %q", summ.lastDoc)
	}
}

func TestComposeWeeklyDoublesCap(t *testing.T) {
	summ := &mockSummarizer{result: "ok"}
	uc := NewDigestUsecase(summ, newTestCounter(), 5, 0)

	groups := []domain.ChannelWindow{makeWindow("general", 20, 1)}
	uc.Compose(context.Background(), groups, true, "acme", "t", "green")

	if !summ.lastIsWk {
		t.Error("Weekly flag must reach the summarizer")
	}
	// Weekly cap is 10: msg-10..msg-19 are present, msg-9 is not.
	if !strings.Contains(summ.lastDoc, "msg-10") {
		t.Errorf("Weekly cap must double the per-channel limit: %q", summ.lastDoc)
	}
	if strings.Contains(summ.lastDoc, "msg-9\n") || strings.HasSuffix(summ.lastDoc, "msg-9") {
		t.Errorf("msg-9 must be outside the weekly cap: %q", summ.lastDoc)
	}
}

func TestComposeTopChannels(t *testing.T) {
	summ := &mockSummarizer{result: "ok"}
	uc := NewDigestUsecase(summ, newTestCounter(), 100, 0)

	groups := []domain.ChannelWindow{
		makeWindow("a", 5, 1),
		makeWindow("b", 9, 1),
		makeWindow("c", 9, 1),
		makeWindow("d", 2, 1),
		makeWindow("e", 7, 1),
	}

	res := uc.Compose(context.Background(), groups, false, "acme", "t", "blue")
	if len(res.TopChannels) != 3 {
		t.Fatalf("Daily digest lists top 3 channels, got %d", len(res.TopChannels))
	}
	// b and c tie at 9; b comes first in window order.
	if res.TopChannels[0].ChannelName != "b" || res.TopChannels[1].ChannelName != "c" || res.TopChannels[2].ChannelName != "e" {
		t.Errorf("Unexpected top channels: %v", res.TopChannels)
	}

	res = uc.Compose(context.Background(), groups, true, "acme", "t", "green")
	if len(res.TopChannels) != 5 {
		t.Errorf("Weekly digest lists top 5 channels, got %d", len(res.TopChannels))
	}
}

func TestComposeEmptyWindow(t *testing.T) {
	summ := &mockSummarizer{result: "must not appear"}
	usage := newTestCounter()
	uc := NewDigestUsecase(summ, usage, 100, 2)

	res := uc.Compose(context.Background(), nil, false, "acme", "t", "blue")
	if !res.Empty {
		t.Error("Expected Empty to be set")
	}
	if res.Narrative != NoMessagesNarrative {
		t.Errorf("Unexpected narrative: %q", res.Narrative)
	}
	if summ.calls != 0 {
		t.Errorf("Empty window must not call the summarizer, got %d calls", summ.calls)
	}
	if usage.Today() != 0 {
		t.Errorf("Empty window must not count usage, got %d", usage.Today())
	}
}

func TestComposeFallbackOnFailure(t *testing.T) {
	summ := &mockSummarizer{failFirst: 100}
	usage := newTestCounter()
	uc := NewDigestUsecase(summ, usage, 100, 2)

	groups := []domain.ChannelWindow{makeWindow("general", 3, 2)}
	res := uc.Compose(context.Background(), groups, false, "acme", "t", "blue")

	if !res.Fallback {
		t.Error("Expected fallback narrative")
	}
	if summ.calls != 3 {
		t.Errorf("Retry budget of 2 means 3 attempts, got %d", summ.calls)
	}
	if usage.Today() != 0 {
		t.Errorf("Failed runs must not count usage, got %d", usage.Today())
	}
	if res.Narrative == "" {
		t.Error("Fallback narrative must not be empty")
	}
}

func TestComposeRetryRecovers(t *testing.T) {
	summ := &mockSummarizer{failFirst: 1, result: "recovered"}
	usage := newTestCounter()
	uc := NewDigestUsecase(summ, usage, 100, 2)

	groups := []domain.ChannelWindow{makeWindow("general", 3, 2)}
	res := uc.Compose(context.Background(), groups, false, "acme", "t", "blue")
	if res.Fallback || res.Narrative != "recovered" {
		t.Errorf("Expected recovery on retry, got fallback=%v narrative=%q", res.Fallback, res.Narrative)
	}
	if summ.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", summ.calls)
	}
	if usage.Today() != 1 {
		t.Errorf("Expected 1 counted call, got %d", usage.Today())
	}
}

func TestBuildDocumentAnnotations(t *testing.T) {
	summ := &mockSummarizer{result: "ok"}
	uc := NewDigestUsecase(summ, newTestCounter(), 100, 0)

	groups := []domain.ChannelWindow{makeWindow("general", 3, 2)}
	groups[0].Messages[0].Attachments = 2
	groups[0].Messages[0].Embeds = 1

	uc.Compose(context.Background(), groups, false, "acme", "t", "blue")
	if !strings.Contains(summ.lastDoc, "[attachments: 2]") || !strings.Contains(summ.lastDoc, "[embeds: 1]") {
		t.Errorf("Missing media annotations in document: %q", summ.lastDoc)
	}
	if !strings.Contains(summ.lastDoc, "=== #general ===") {
		t.Errorf("Missing channel header in document: %q", summ.lastDoc)
	}
}
