package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/feishu-digest-bot/feishu"
	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/repo"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
)

// FeishuServer is the platform-facing edge: it turns inbound events into
// buffer appends and tenant lifecycle calls, and parses the thin text
// command surface.
type FeishuServer struct {
	client   *feishu.Client
	bufferUC *usecase.BufferUsecase
	tenantUC *usecase.TenantUsecase
	digestUC *usecase.DigestUsecase
	delivery repo.DeliveryRepo
	usage    *usecase.UsageCounter

	loc       *time.Location
	model     string
	startTime time.Time

	// Message deduplication cache
	seenMsgsMu sync.RWMutex
	seenMsgs   map[string]time.Time // msgID -> first seen

	// chatID -> display name cache for ingestion
	chatNamesMu sync.RWMutex
	chatNames   map[string]string

	// chatID -> (open_id -> display name) cache for ingestion
	memberNamesMu sync.RWMutex
	memberNames   map[string]map[string]string

	// member list fetch, swappable in tests
	listMembers func(ctx context.Context, chatID string) ([]feishu.ChatMember, error)
}

// NewFeishuServer creates a new platform server.
func NewFeishuServer(
	client *feishu.Client,
	bufferUC *usecase.BufferUsecase,
	tenantUC *usecase.TenantUsecase,
	digestUC *usecase.DigestUsecase,
	delivery repo.DeliveryRepo,
	usage *usecase.UsageCounter,
	loc *time.Location,
	model string,
) *FeishuServer {
	return &FeishuServer{
		client:      client,
		bufferUC:    bufferUC,
		tenantUC:    tenantUC,
		digestUC:    digestUC,
		delivery:    delivery,
		usage:       usage,
		loc:         loc,
		model:       model,
		startTime:   time.Now(),
		seenMsgs:    make(map[string]time.Time),
		chatNames:   make(map[string]string),
		memberNames: make(map[string]map[string]string),
		listMembers: client.GetChatMembers,
	}
}

// Start registers event handlers and blocks on the event stream.
func (s *FeishuServer) Start() error {
	s.client.OnMessage(s.handleMessage)
	s.client.OnBotAdded(s.handleBotAdded)
	s.client.OnBotRemoved(s.handleBotRemoved)
	return s.client.Start()
}

// Stop closes the event stream.
func (s *FeishuServer) Stop() {
	s.client.Stop()
}

// handleMessage routes one inbound message: command, or buffer append.
func (s *FeishuServer) handleMessage(msg *feishu.InboundMessage) {
	if msg.SenderIsBot || msg.TenantKey == "" {
		return
	}
	if s.isMessageSeen(msg.MsgID) {
		return
	}
	s.markMessageSeen(msg.MsgID)

	ctx := context.Background()

	tenant, err := s.tenantUC.OnTenantJoin(ctx, msg.TenantKey, msg.TenantKey)
	if err != nil {
		fmt.Printf("[Server] Failed to register tenant %s: %v\n", msg.TenantKey, err)
		return
	}

	if cmd := strings.TrimSpace(msg.Content); strings.HasPrefix(cmd, "/") {
		s.handleCommand(ctx, tenant, msg.ChatID, cmd)
		return
	}

	// Digest-channel traffic never feeds the next digest.
	if msg.ChatID == tenant.DigestChannelID {
		return
	}

	s.bufferUC.Ingest(msg.TenantKey, domain.Message{
		Author:      s.senderName(ctx, msg.ChatID, msg.SenderID),
		Content:     msg.Content,
		Timestamp:   msg.CreateTime,
		ChannelID:   msg.ChatID,
		ChannelName: s.chatName(ctx, msg.ChatID),
		Attachments: msg.Attachments,
		Embeds:      msg.Embeds,
	})
}

func (s *FeishuServer) handleBotAdded(ev *feishu.BotLifecycleEvent) {
	ctx := context.Background()
	if _, err := s.tenantUC.OnTenantJoin(ctx, ev.TenantKey, ev.TenantKey); err != nil {
		fmt.Printf("[Server] Tenant join failed for %s: %v\n", ev.TenantKey, err)
		return
	}
	s.setChatName(ev.ChatID, ev.ChatName)
	fmt.Printf("[Server] Bot added to chat %s (%s) in tenant %s\n", ev.ChatID, ev.ChatName, ev.TenantKey)
}

func (s *FeishuServer) handleBotRemoved(ev *feishu.BotLifecycleEvent) {
	ctx := context.Background()
	tenant, err := s.tenantUC.Get(ctx, ev.TenantKey)
	if err != nil || tenant == nil {
		return
	}
	// Losing the digest channel unbinds the destination; the tenant goes
	// silent until an operator binds a new one.
	if ev.ChatID == tenant.DigestChannelID {
		if err := s.tenantUC.SetDigestChannel(ctx, ev.TenantKey, ""); err != nil {
			fmt.Printf("[Server] Failed to unbind digest channel for %s: %v\n", ev.TenantKey, err)
		} else {
			fmt.Printf("[Server] Digest channel unbound for tenant %s\n", ev.TenantKey)
		}
	}
}

// handleCommand parses the operator command surface.
func (s *FeishuServer) handleCommand(ctx context.Context, tenant *domain.TenantConfig, chatID, cmd string) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case "/summary":
		hours := 24
		if len(fields) > 1 {
			if parsed, err := strconv.Atoi(fields[1]); err == nil {
				hours = parsed
			}
		}
		s.manualSummary(ctx, tenant, chatID, hours)
	case "/status":
		s.reply(ctx, chatID, s.statusText(tenant))
	case "/digest":
		s.toggleDigest(ctx, tenant, chatID, fields)
	case "/set_digest_channel":
		if err := s.tenantUC.SetDigestChannel(ctx, tenant.TenantID, chatID); err != nil {
			s.reply(ctx, chatID, "Failed to set digest channel.")
			return
		}
		s.reply(ctx, chatID, "This chat is now the digest channel.")
	case "/api_usage":
		s.reply(ctx, chatID, fmt.Sprintf("Summarization calls today: %d (model: %s)", s.usage.Today(), s.model))
	}
}

// manualSummary runs the on-demand digest path and delivers it to the
// requesting chat.
func (s *FeishuServer) manualSummary(ctx context.Context, tenant *domain.TenantConfig, chatID string, hours int) {
	groups, hours := s.bufferUC.ManualWindow(tenant.TenantID, hours)
	if len(groups) == 0 {
		s.reply(ctx, chatID, fmt.Sprintf("No messages to summarize in the last %d hours.", hours))
		return
	}

	isWeekly := hours >= domain.RetentionHours
	title := fmt.Sprintf("Last %d hours digest", hours)
	res := s.digestUC.Compose(ctx, groups, isWeekly, tenant.Name, title, manualColor(hours))
	if err := s.delivery.PostDigest(ctx, chatID, res); err != nil {
		fmt.Printf("[Server] Manual digest delivery failed for %s: %v\n", tenant.TenantID, err)
	}
}

func manualColor(hours int) string {
	switch {
	case hours <= 6:
		return "green"
	case hours <= 24:
		return "blue"
	case hours <= 48:
		return "purple"
	}
	return "yellow"
}

func (s *FeishuServer) toggleDigest(ctx context.Context, tenant *domain.TenantConfig, chatID string, fields []string) {
	if len(fields) < 2 || (fields[1] != "on" && fields[1] != "off") {
		s.reply(ctx, chatID, "Usage: /digest on|off")
		return
	}
	enabled := fields[1] == "on"
	if err := s.tenantUC.SetEnabled(ctx, tenant.TenantID, enabled); err != nil {
		s.reply(ctx, chatID, "Failed to update digest setting.")
		return
	}
	if enabled {
		s.reply(ctx, chatID, "Scheduled digests enabled.")
	} else {
		s.reply(ctx, chatID, "Scheduled digests disabled.")
	}
}

// statusText renders the /status report.
func (s *FeishuServer) statusText(tenant *domain.TenantConfig) string {
	var sb strings.Builder

	if tenant.DigestChannelID != "" {
		fmt.Fprintf(&sb, "Digest channel: %s\n", tenant.DigestChannelID)
	} else {
		sb.WriteString("Digest channel: not set\n")
	}
	fmt.Fprintf(&sb, "Scheduled digests: %v\n", tenant.Enabled)

	stats, total := s.bufferUC.Stats(tenant.TenantID)
	fmt.Fprintf(&sb, "Buffered messages: %d\n", total)
	for i, st := range stats {
		if i == 10 {
			fmt.Fprintf(&sb, "... and %d more channels\n", len(stats)-10)
			break
		}
		fmt.Fprintf(&sb, "  #%s: %d\n", st.ChannelName, st.Count)
	}

	now := time.Now().In(s.loc)
	next := domain.WeeklySchedule.NextRun(now)
	nextLabel := domain.WeeklySchedule.Label
	for _, entry := range domain.DailySchedule {
		if run := entry.NextRun(now); run.Before(next) {
			next, nextLabel = run, entry.Label
		}
	}
	fmt.Fprintf(&sb, "Next run: %s - %s\n", next.Format("2006-01-02 15:04"), nextLabel)
	fmt.Fprintf(&sb, "Model: %s\n", s.model)

	uptime := time.Since(s.startTime)
	fmt.Fprintf(&sb, "Uptime: %dd %dh", int(uptime.Hours())/24, int(uptime.Hours())%24)
	return sb.String()
}

func (s *FeishuServer) reply(ctx context.Context, chatID, text string) {
	if err := s.delivery.SendText(ctx, chatID, text); err != nil {
		fmt.Printf("[Server] Failed to send reply: %v\n", err)
	}
}

// chatName resolves and caches a chat's display name.
func (s *FeishuServer) chatName(ctx context.Context, chatID string) string {
	s.chatNamesMu.RLock()
	name, ok := s.chatNames[chatID]
	s.chatNamesMu.RUnlock()
	if ok {
		return name
	}

	name, err := s.client.GetChatName(ctx, chatID)
	if err != nil || name == "" {
		return chatID
	}
	s.setChatName(chatID, name)
	return name
}

// senderName resolves an open_id to the member's display name via the
// chat member list, caching per chat. Unknown ids fall back to the raw id
// and are cached to avoid refetching on every message.
func (s *FeishuServer) senderName(ctx context.Context, chatID, openID string) string {
	if openID == "" {
		return openID
	}

	s.memberNamesMu.RLock()
	name, ok := s.memberNames[chatID][openID]
	s.memberNamesMu.RUnlock()
	if ok {
		return name
	}

	name = openID
	members, err := s.listMembers(ctx, chatID)
	if err != nil {
		fmt.Printf("[Server] Failed to list members of %s: %v\n", chatID, err)
	} else {
		s.memberNamesMu.Lock()
		byID := make(map[string]string, len(members))
		for _, m := range members {
			if m.Name != "" {
				byID[m.ID] = m.Name
			}
		}
		s.memberNames[chatID] = byID
		if resolved, ok := byID[openID]; ok {
			name = resolved
		} else {
			byID[openID] = name // member left or hidden; stop refetching
		}
		s.memberNamesMu.Unlock()
	}
	return name
}

func (s *FeishuServer) setChatName(chatID, name string) {
	if name == "" {
		return
	}
	s.chatNamesMu.Lock()
	s.chatNames[chatID] = name
	s.chatNamesMu.Unlock()
}

// isMessageSeen checks the deduplication cache.
func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.RLock()
	defer s.seenMsgsMu.RUnlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen records a message id and expires old entries.
func (s *FeishuServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	s.seenMsgs[msgID] = time.Now()

	cutoff := time.Now().Add(-5 * time.Minute)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
