package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

// ErrForbidden marks platform calls rejected for missing permissions.
var ErrForbidden = errors.New("feishu: forbidden")

// InboundMessage is one message received over the event stream, reduced to
// what the digest pipeline needs.
type InboundMessage struct {
	TenantKey   string
	ChatID      string
	MsgID       string
	Content     string
	SenderID    string // sender open_id; display name resolution is the caller's job
	SenderIsBot bool
	CreateTime  time.Time // UTC
	Attachments int
	Embeds      int
}

// BotLifecycleEvent reports the bot being added to or removed from a chat.
type BotLifecycleEvent struct {
	TenantKey string
	ChatID    string
	ChatName  string
}

// Client wraps the Lark SDK: a websocket event stream in, chat and message
// APIs out.
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client

	onMessage    func(*InboundMessage)
	onBotAdded   func(*BotLifecycleEvent)
	onBotRemoved func(*BotLifecycleEvent)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a new Lark client.
func NewClient(appID, appSecret string) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
	}
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(handler func(*InboundMessage)) {
	c.onMessage = handler
}

// OnBotAdded registers the handler for the bot joining a chat.
func (c *Client) OnBotAdded(handler func(*BotLifecycleEvent)) {
	c.onBotAdded = handler
}

// OnBotRemoved registers the handler for the bot being removed from a chat.
func (c *Client) OnBotRemoved(handler func(*BotLifecycleEvent)) {
	c.onBotRemoved = handler
}

// Start connects the websocket event stream and blocks until Stop.
func (c *Client) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleMessage(event)
			return nil
		}).
		OnP2ChatMemberBotAddedV1(func(ctx context.Context, event *larkim.P2ChatMemberBotAddedV1) error {
			c.handleBotAdded(event)
			return nil
		}).
		OnP2ChatMemberBotDeletedV1(func(ctx context.Context, event *larkim.P2ChatMemberBotDeletedV1) error {
			c.handleBotRemoved(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	fmt.Println("[Feishu] Starting WebSocket connection...")
	return c.wsCli.Start(c.ctx)
}

// Stop closes the websocket connection.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if c.onMessage == nil || event.Event == nil || event.Event.Message == nil {
		return
	}
	msg := event.Event.Message

	in := &InboundMessage{
		ChatID:     deref(msg.ChatId),
		MsgID:      deref(msg.MessageId),
		CreateTime: time.Now().UTC(),
	}
	if event.EventV2Base != nil && event.EventV2Base.Header != nil {
		in.TenantKey = event.EventV2Base.Header.TenantKey
	}
	if msg.CreateTime != nil {
		// Millisecond epoch string.
		if ms, err := strconv.ParseInt(*msg.CreateTime, 10, 64); err == nil {
			in.CreateTime = time.UnixMilli(ms).UTC()
		}
	}
	if event.Event.Sender != nil {
		in.SenderIsBot = deref(event.Event.Sender.SenderType) == "app"
		if event.Event.Sender.SenderId != nil {
			in.SenderID = deref(event.Event.Sender.SenderId.OpenId)
		}
	}

	in.Content, in.Attachments, in.Embeds = parseContent(deref(msg.MessageType), deref(msg.Content))
	if in.Content == "" && in.Attachments == 0 && in.Embeds == 0 {
		return
	}

	c.onMessage(in)
}

func (c *Client) handleBotAdded(event *larkim.P2ChatMemberBotAddedV1) {
	if c.onBotAdded == nil || event.Event == nil {
		return
	}
	ev := &BotLifecycleEvent{
		ChatID:   deref(event.Event.ChatId),
		ChatName: deref(event.Event.Name),
	}
	if event.EventV2Base != nil && event.EventV2Base.Header != nil {
		ev.TenantKey = event.EventV2Base.Header.TenantKey
	}
	c.onBotAdded(ev)
}

func (c *Client) handleBotRemoved(event *larkim.P2ChatMemberBotDeletedV1) {
	if c.onBotRemoved == nil || event.Event == nil {
		return
	}
	ev := &BotLifecycleEvent{
		ChatID:   deref(event.Event.ChatId),
		ChatName: deref(event.Event.Name),
	}
	if event.EventV2Base != nil && event.EventV2Base.Header != nil {
		ev.TenantKey = event.EventV2Base.Header.TenantKey
	}
	c.onBotRemoved(ev)
}

// parseContent extracts plain text plus attachment/embed counts from the
// platform's per-type JSON content payloads.
func parseContent(msgType, rawContent string) (text string, attachments, embeds int) {
	switch msgType {
	case "text":
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(rawContent), &parsed); err == nil {
			return parsed.Text, 0, 0
		}
		return rawContent, 0, 0
	case "post":
		var parsed struct {
			Title   string `json:"title"`
			Content [][]struct {
				Tag  string `json:"tag"`
				Text string `json:"text,omitempty"`
			} `json:"content"`
		}
		if err := json.Unmarshal([]byte(rawContent), &parsed); err == nil {
			var parts []string
			if parsed.Title != "" {
				parts = append(parts, parsed.Title)
			}
			for _, line := range parsed.Content {
				for _, elem := range line {
					if elem.Tag == "text" && elem.Text != "" {
						parts = append(parts, elem.Text)
					}
					if elem.Tag == "img" || elem.Tag == "media" {
						attachments++
					}
				}
			}
			return strings.Join(parts, "\n"), attachments, 0
		}
		return "", 0, 0
	case "image", "file", "audio", "media", "sticker":
		return "", 1, 0
	case "interactive", "share_chat", "share_user":
		return "", 0, 1
	}
	return "", 0, 0
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	content, _ := json.Marshal(map[string]string{"text": text})
	return c.createMessage(ctx, chatID, larkim.MsgTypeText, string(content))
}

// SendCard sends an interactive card (pre-rendered JSON) to a chat.
func (c *Client) SendCard(ctx context.Context, chatID, cardJSON string) error {
	return c.createMessage(ctx, chatID, larkim.MsgTypeInteractive, cardJSON)
}

func (c *Client) createMessage(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		if isForbidden(resp.Code, resp.Msg) {
			return fmt.Errorf("send message to %s: %s: %w", chatID, resp.Msg, ErrForbidden)
		}
		return fmt.Errorf("send message error: %s", resp.Msg)
	}
	return nil
}

// FindChatByName scans the bot's chats for an exact name match and returns
// its id, or "" when absent.
func (c *Client) FindChatByName(ctx context.Context, name string) (string, error) {
	pageToken := ""
	for {
		builder := larkim.NewListChatReqBuilder().PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}
		resp, err := c.larkCli.Im.Chat.List(ctx, builder.Build())
		if err != nil {
			return "", fmt.Errorf("list chats failed: %w", err)
		}
		if !resp.Success() {
			return "", fmt.Errorf("list chats error: %s", resp.Msg)
		}
		for _, item := range resp.Data.Items {
			if deref(item.Name) == name {
				return deref(item.ChatId), nil
			}
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore {
			return "", nil
		}
		pageToken = deref(resp.Data.PageToken)
	}
}

// CreateChat creates a group chat with the given name and returns its id.
func (c *Client) CreateChat(ctx context.Context, name, description string) (string, error) {
	req := larkim.NewCreateChatReqBuilder().
		Body(larkim.NewCreateChatReqBodyBuilder().
			Name(name).
			Description(description).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Chat.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat failed: %w", err)
	}
	if !resp.Success() {
		if isForbidden(resp.Code, resp.Msg) {
			return "", fmt.Errorf("create chat %q: %s: %w", name, resp.Msg, ErrForbidden)
		}
		return "", fmt.Errorf("create chat error: %s", resp.Msg)
	}
	return deref(resp.Data.ChatId), nil
}

// ChatMember is one member of a group chat.
type ChatMember struct {
	ID   string // open_id
	Name string // display name
}

// GetChatMembers retrieves all members of a chat, paging as needed.
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]ChatMember, error) {
	var members []ChatMember
	pageToken := ""
	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}
		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}
		for _, item := range resp.Data.Items {
			members = append(members, ChatMember{
				ID:   deref(item.MemberId),
				Name: deref(item.Name),
			})
		}
		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			return members, nil
		}
		pageToken = *resp.Data.PageToken
	}
}

// GetChatName resolves a chat's display name.
func (c *Client) GetChatName(ctx context.Context, chatID string) (string, error) {
	req := larkim.NewGetChatReqBuilder().ChatId(chatID).Build()
	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get chat failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get chat error: %s", resp.Msg)
	}
	return deref(resp.Data.Name), nil
}

func isForbidden(code int, msg string) bool {
	// 99991672: app lacks the required scope; also match on message text
	// since the platform is not consistent across endpoints.
	return code == 99991672 || strings.Contains(strings.ToLower(msg), "permission") ||
		strings.Contains(strings.ToLower(msg), "forbidden")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
