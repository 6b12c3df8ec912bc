package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/utils"
)

// SinkNameTelegram is the dispatch key for the chat notifier sink.
const SinkNameTelegram = "telegram"

// notifierBot is the slice of the bot API the sink uses.
type notifierBot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (any, error)
}

// botAdapter narrows *bot.Bot to notifierBot.
type botAdapter struct {
	b *bot.Bot
}

func (a botAdapter) SendMessage(ctx context.Context, params *bot.SendMessageParams) (any, error) {
	return a.b.SendMessage(ctx, params)
}

// TelegramSink pushes matched messages to a chat. A time-bounded cache
// of content hashes suppresses re-notification of identical content
// inside the dedup window.
type TelegramSink struct {
	bot         notifierBot
	chatID      int64
	dedupWindow time.Duration
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time

	logger zerolog.Logger
}

type TelegramSinkConfig struct {
	BotToken    string
	ChatID      int64
	DedupWindow time.Duration
	// Bot overrides the real API client in tests.
	Bot    notifierBot
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewTelegramSink(cfg TelegramSinkConfig) (*TelegramSink, error) {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Bot == nil {
		b, err := bot.New(cfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("create bot client: %w", err)
		}
		cfg.Bot = botAdapter{b: b}
	}
	return &TelegramSink{
		bot:         cfg.Bot,
		chatID:      cfg.ChatID,
		dedupWindow: cfg.DedupWindow,
		now:         cfg.Now,
		seen:        make(map[string]time.Time),
		logger:      cfg.Logger.With().Str("component", "telegram_sink").Logger(),
	}, nil
}

func (s *TelegramSink) Name() string { return SinkNameTelegram }

func (s *TelegramSink) Send(ctx context.Context, p *domain.SinkPayload) error {
	text := s.format(p)
	if text == "" {
		return nil
	}

	if s.suppressed(text) {
		s.logger.Debug().Str("rule_id", p.RuleID).Msg("notification suppressed by dedup window")
		return nil
	}

	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// suppressed records the hash and reports whether it was already seen
// inside the window. Stale entries are pruned on the way through.
func (s *TelegramSink) suppressed(text string) bool {
	h := utils.ContentHash([]byte(text))
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, at := range s.seen {
		if now.Sub(at) > s.dedupWindow {
			delete(s.seen, k)
		}
	}
	if at, ok := s.seen[h]; ok && now.Sub(at) <= s.dedupWindow {
		return true
	}
	s.seen[h] = now
	return false
}

func (s *TelegramSink) format(p *domain.SinkPayload) string {
	switch p.Kind {
	case domain.PayloadMatch:
		if p.Message == nil {
			return ""
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]", p.RuleID)
		if p.Group != nil && p.Group.Title != "" {
			fmt.Fprintf(&b, " %s", p.Group.Title)
		}
		if p.Sender != nil {
			fmt.Fprintf(&b, " / %s", p.Sender.DisplayName())
		}
		fmt.Fprintf(&b, "\n%s", p.Message.RawText)
		return b.String()
	case domain.PayloadNewGroup:
		if p.Group == nil {
			return ""
		}
		return fmt.Sprintf("new group discovered: %s (%d)", p.Group.Title, p.Group.ID)
	default:
		// Operational heartbeats stay out of the chat.
		return ""
	}
}

func (s *TelegramSink) Close(ctx context.Context) error { return nil }
