package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/feishu-digest-bot/feishu"
	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
)

// feishuRepo implements the delivery boundary on the Lark client. It owns
// the card rendering; the core only knows the DigestResult structure.
type feishuRepo struct {
	client *feishu.Client
}

// NewDeliveryRepo creates a Lark-backed delivery repository.
func NewDeliveryRepo(client *feishu.Client) repo.DeliveryRepo {
	return &feishuRepo{client: client}
}

// PostDigest renders the digest as an interactive card and posts it.
func (r *feishuRepo) PostDigest(ctx context.Context, channelID string, res *domain.DigestResult) error {
	card, err := buildDigestCard(res)
	if err != nil {
		return fmt.Errorf("build digest card: %w", err)
	}
	if err := r.client.SendCard(ctx, channelID, card); err != nil {
		return mapPlatformErr(err)
	}
	return nil
}

// SendText posts a plain text message.
func (r *feishuRepo) SendText(ctx context.Context, channelID, text string) error {
	if err := r.client.SendText(ctx, channelID, text); err != nil {
		return mapPlatformErr(err)
	}
	return nil
}

// EnsureDigestChannel finds or creates the digest chat by display name.
func (r *feishuRepo) EnsureDigestChannel(ctx context.Context, name string) (string, error) {
	chatID, err := r.client.FindChatByName(ctx, name)
	if err != nil {
		return "", mapPlatformErr(err)
	}
	if chatID != "" {
		return chatID, nil
	}

	chatID, err = r.client.CreateChat(ctx, name, "Scheduled chat digests are posted here.")
	if err != nil {
		return "", mapPlatformErr(err)
	}
	return chatID, nil
}

func mapPlatformErr(err error) error {
	if errors.Is(err, feishu.ErrForbidden) {
		return fmt.Errorf("%v: %w", err, repo.ErrPermission)
	}
	return err
}

// buildDigestCard renders a DigestResult into Lark interactive card JSON.
func buildDigestCard(res *domain.DigestResult) (string, error) {
	stats := fmt.Sprintf("💬 %d messages | 📍 %d channels | 👥 %d authors",
		res.TotalMessages, res.ActiveChannels, res.AuthorCount)

	elements := []map[string]any{
		mdBlock("**📊 Stats**\n" + stats),
	}

	if len(res.TopChannels) > 0 {
		parts := make([]string, 0, len(res.TopChannels))
		for _, ch := range res.TopChannels {
			parts = append(parts, fmt.Sprintf("**#%s**: %d", ch.ChannelName, ch.Count))
		}
		elements = append(elements, mdBlock("**🔥 Active channels**\n"+strings.Join(parts, " / ")))
	}

	elements = append(elements,
		map[string]any{"tag": "hr"},
		mdBlock(res.Narrative),
	)

	note := res.GeneratedAt.Format("2006-01-02 15:04 UTC")
	if res.Fallback {
		note += " · keyword fallback"
	}
	elements = append(elements, map[string]any{
		"tag": "note",
		"elements": []map[string]any{
			{"tag": "plain_text", "content": note},
		},
	})

	card := map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"template": res.Color,
			"title":    map[string]any{"tag": "plain_text", "content": "📋 " + res.Title},
		},
		"elements": elements,
	}

	raw, err := json.Marshal(card)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func mdBlock(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}
