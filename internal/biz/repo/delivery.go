package repo

import (
	"context"
	"errors"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
)

// ErrPermission marks delivery failures caused by missing platform
// permissions. The fan-out logs these and stops only the affected tenant.
var ErrPermission = errors.New("insufficient platform permissions")

// DeliveryRepo is the chat-platform delivery boundary. The core hands it a
// structured digest; platform-specific rendering lives behind it.
type DeliveryRepo interface {
	// PostDigest renders and posts a digest card to the given chat.
	PostDigest(ctx context.Context, channelID string, res *domain.DigestResult) error

	// SendText posts a plain text message (command replies).
	SendText(ctx context.Context, channelID, text string) error

	// EnsureDigestChannel finds or creates the tenant's digest chat by its
	// configured display name and returns its id.
	EnsureDigestChannel(ctx context.Context, name string) (string, error)
}
