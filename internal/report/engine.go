// Package report builds filtered, windowed report entries from stored
// messages and renders them to HTML or plain text.
package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/utils"
)

// Order fixes the timeline direction of a report.
type Order int

const (
	OrderAscending Order = iota
	OrderDescending
)

// WindowTag marks how an entry entered the report.
type WindowTag int

const (
	// TagMatch entries satisfied the filter directly.
	TagMatch WindowTag = iota
	// TagPrevious entries precede a match inside the window radius.
	TagPrevious
	// TagNext entries follow a match inside the window radius.
	TagNext
)

func (t WindowTag) String() string {
	switch t {
	case TagPrevious:
		return "meta_previous"
	case TagNext:
		return "meta_next"
	default:
		return ""
	}
}

// FilterSpec selects messages. Keywords is a comma-separated term list
// matched case-insensitively against the raw text; Regex switches to
// pattern matching with flattened match groups. Empty spec passes all.
type FilterSpec struct {
	Keywords string
	Regex    string
}

// MediaRef is the rendered view of an entry's attachment.
type MediaRef struct {
	// Geo holds "lat,long" for geo points; Path is empty then.
	Geo      string
	Path     string
	MimeType string
	IsImage  bool
}

// Entry is one rendered report line.
type Entry struct {
	Message domain.Message
	Tag     WindowTag
	// Matches holds the flattened regex groups for direct matches.
	Matches []string
	From    string
	To      string
	Media   *MediaRef
}

// MediaDirProvider yields the directory holding a group's media files.
type MediaDirProvider interface {
	Dir(groupID int64) string
}

// Engine generates report entries for one group per call. Sender and
// recipient lookups are memoized per run, never across runs.
type Engine struct {
	messages domain.MessageStore
	media    domain.MediaStore
	users    domain.UserStore
	dirs     MediaDirProvider
	assetDir string
	suppress bool
	logger   zerolog.Logger
}

type EngineConfig struct {
	Messages domain.MessageStore
	Media    domain.MediaStore
	Users    domain.UserStore
	Dirs     MediaDirProvider
	// AssetDir receives copies of referenced media files.
	AssetDir string
	// SuppressRepeated drops messages whose content hash was already
	// emitted earlier in the same run.
	SuppressRepeated bool
	Logger           zerolog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		messages: cfg.Messages,
		media:    cfg.Media,
		users:    cfg.Users,
		dirs:     cfg.Dirs,
		assetDir: cfg.AssetDir,
		suppress: cfg.SuppressRepeated,
		logger:   cfg.Logger.With().Str("component", "report_engine").Logger(),
	}
}

// Generate loads the group's timeline, applies the filter, expands
// windows around matches and returns the deduplicated, coalesced
// entries. An invalid regex aborts the whole run with
// ErrBadFilterPattern; the caller must treat that as fatal.
func (e *Engine) Generate(ctx context.Context, group *domain.Group, spec FilterSpec, radius int, order Order, ageLimit time.Duration) ([]Entry, error) {
	var since time.Time
	if ageLimit > 0 {
		since = time.Now().UTC().Add(-ageLimit)
	}

	msgs, err := e.messages.ForGroup(ctx, group.ID, since, order == OrderAscending)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	matched, groups, err := matchMessages(msgs, spec)
	if err != nil {
		return nil, err
	}

	entries := expandWindows(msgs, matched, groups, radius)

	if e.suppress {
		entries = suppressRepeated(entries)
	}

	cache := newUserCache(e.users)
	entries = e.coalesce(ctx, entries, cache)

	for i := range entries {
		e.annotate(ctx, &entries[i], cache)
		e.resolveMedia(ctx, &entries[i])
	}

	e.logger.Info().
		Int64("group_id", group.ID).
		Int("loaded", len(msgs)).
		Int("entries", len(entries)).
		Msg("report generated")
	return entries, nil
}

// matchMessages returns the matched index set and, for regex specs, the
// flattened match groups per index.
func matchMessages(msgs []domain.Message, spec FilterSpec) (map[int]bool, map[int][]string, error) {
	matched := make(map[int]bool)
	groups := make(map[int][]string)

	switch {
	case spec.Regex != "":
		re, err := regexp.Compile("(?im)" + spec.Regex)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q: %s", domain.ErrBadFilterPattern, spec.Regex, err)
		}
		for i := range msgs {
			found := re.FindAllStringSubmatch(msgs[i].RawText, -1)
			if len(found) == 0 {
				continue
			}
			matched[i] = true
			for _, m := range found {
				if len(m) > 1 {
					groups[i] = append(groups[i], m[1:]...)
				} else {
					groups[i] = append(groups[i], m[0])
				}
			}
		}

	case strings.TrimSpace(spec.Keywords) != "":
		var terms []string
		for _, t := range strings.Split(spec.Keywords, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
		for i := range msgs {
			text := strings.ToLower(msgs[i].RawText)
			for _, term := range terms {
				if strings.Contains(text, term) {
					matched[i] = true
					break
				}
			}
		}

	default:
		for i := range msgs {
			matched[i] = true
		}
	}

	return matched, groups, nil
}

// expandWindows surrounds each match with its neighbors from the full
// unfiltered timeline, clamped at the boundaries. Overlapping windows
// keep the first occurrence of each message ID; when a later occurrence
// is itself a direct match, the kept entry is upgraded so highlighting
// survives overlap.
func expandWindows(msgs []domain.Message, matched map[int]bool, groups map[int][]string, radius int) []Entry {
	if radius < 0 {
		radius = 0
	}

	var entries []Entry
	position := make(map[int64]int)

	appendEntry := func(idx int, tag WindowTag) {
		id := msgs[idx].ID
		if at, ok := position[id]; ok {
			if tag == TagMatch && entries[at].Tag != TagMatch {
				entries[at].Tag = TagMatch
				entries[at].Matches = groups[idx]
			}
			return
		}
		entry := Entry{Message: msgs[idx], Tag: tag}
		if tag == TagMatch {
			entry.Matches = groups[idx]
		}
		position[id] = len(entries)
		entries = append(entries, entry)
	}

	for i := range msgs {
		if !matched[i] {
			continue
		}
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius
		if hi > len(msgs)-1 {
			hi = len(msgs) - 1
		}
		for j := lo; j <= hi; j++ {
			switch {
			case j < i:
				appendEntry(j, TagPrevious)
			case j > i:
				appendEntry(j, TagNext)
			default:
				appendEntry(j, TagMatch)
			}
		}
	}
	return entries
}

// suppressRepeated drops entries whose content hash already appeared
// earlier in this run.
func suppressRepeated(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		h := utils.ContentHash([]byte(entry.Message.RawText))
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, entry)
	}
	return out
}

// coalesce merges consecutive media-less messages from the same non-bot
// sender to the same recipient into the prior entry, newline-joined.
// Bot senders never coalesce.
func (e *Engine) coalesce(ctx context.Context, entries []Entry, cache *userCache) []Entry {
	if len(entries) < 2 {
		return entries
	}

	out := entries[:1]
	for _, entry := range entries[1:] {
		prev := &out[len(out)-1]
		if canCoalesce(ctx, prev, &entry, cache) {
			prev.Message.Text += "\n" + entry.Message.Text
			prev.Message.RawText += "\n" + entry.Message.RawText
			continue
		}
		out = append(out, entry)
	}
	return out
}

func canCoalesce(ctx context.Context, prev, next *Entry, cache *userCache) bool {
	pm, nm := &prev.Message, &next.Message
	if pm.FromID == nil || nm.FromID == nil || *pm.FromID != *nm.FromID {
		return false
	}
	if !samePointee(pm.RecipientID, nm.RecipientID) {
		return false
	}
	if nm.MediaID != nil {
		return false
	}
	sender := cache.get(ctx, *nm.FromID)
	if sender == nil || sender.Bot {
		return false
	}
	return true
}

func samePointee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// annotate fills the human-readable from/to line parts.
func (e *Engine) annotate(ctx context.Context, entry *Entry, cache *userCache) {
	if entry.Message.FromID != nil {
		if u := cache.get(ctx, *entry.Message.FromID); u != nil {
			entry.From = u.DisplayName()
		}
	}
	if entry.Message.RecipientID != nil {
		if u := cache.get(ctx, *entry.Message.RecipientID); u != nil {
			entry.To = u.DisplayName()
		}
	}
}
