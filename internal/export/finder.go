package export

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

// Rule is one compiled finder rule: a pattern plus the sinks its
// matches go to.
type Rule struct {
	ID       string
	Regex    *regexp.Regexp
	Keywords []string
	Sinks    []string
}

// CompileRules compiles the configured finder rules. An invalid regex
// is a fatal configuration error.
func CompileRules(rules []config.FinderRule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		compiled := Rule{ID: r.ID, Sinks: r.Sinks}
		if r.Regex != "" {
			re, err := regexp.Compile("(?im)" + r.Regex)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %s: %v", domain.ErrBadFilterPattern, r.ID, err)
			}
			compiled.Regex = re
		}
		for _, term := range strings.Split(r.Keywords, ",") {
			term = strings.ToLower(strings.TrimSpace(term))
			if term != "" {
				compiled.Keywords = append(compiled.Keywords, term)
			}
		}
		out = append(out, compiled)
	}
	return out, nil
}

// Matches reports whether the message text trips the rule.
func (r *Rule) Matches(text string) bool {
	if r.Regex != nil && r.Regex.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, term := range r.Keywords {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Finder runs every compiled rule against ingested messages and routes
// matches to the rule's sinks. Group and sender context is attached
// best effort; a failed lookup still dispatches the bare match.
type Finder struct {
	rules      []Rule
	dispatcher *Dispatcher
	groups     domain.GroupStore
	users      domain.UserStore
	source     string
	logger     zerolog.Logger
}

type FinderConfig struct {
	Rules      []Rule
	Dispatcher *Dispatcher
	Groups     domain.GroupStore
	Users      domain.UserStore
	// Source labels dispatched payloads with the originating stage.
	Source string
	Logger zerolog.Logger
}

func NewFinder(cfg FinderConfig) *Finder {
	return &Finder{
		rules:      cfg.Rules,
		dispatcher: cfg.Dispatcher,
		groups:     cfg.Groups,
		users:      cfg.Users,
		source:     cfg.Source,
		logger:     cfg.Logger.With().Str("component", "finder").Logger(),
	}
}

// Inspect runs the rule set against one persisted message.
func (f *Finder) Inspect(ctx context.Context, m *domain.Message) {
	for i := range f.rules {
		rule := &f.rules[i]
		if !rule.Matches(m.RawText) {
			continue
		}

		p := &domain.SinkPayload{
			Kind:    domain.PayloadMatch,
			Message: m,
			At:      time.Now().UTC(),
		}
		if f.groups != nil {
			if g, err := f.groups.Get(ctx, m.GroupID); err == nil {
				p.Group = g
			}
		}
		if f.users != nil && m.FromID != nil {
			if u, err := f.users.Get(ctx, *m.FromID); err == nil {
				p.Sender = u
			}
		}

		f.logger.Debug().
			Str("rule_id", rule.ID).
			Int64("group_id", m.GroupID).
			Int64("message_id", m.ID).
			Msg("finder rule matched")
		f.dispatcher.Run(ctx, rule.Sinks, p, rule.ID, f.source)
	}
}
