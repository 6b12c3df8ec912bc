package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time        { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func matchPayload(id int64, text string) *domain.SinkPayload {
	return &domain.SinkPayload{
		Kind:   domain.PayloadMatch,
		RuleID: "watch-1",
		Source: "listen",
		Message: &domain.Message{
			ID:      id,
			GroupID: 100,
			Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			RawText: text,
		},
	}
}

func TestRollingFileSinkFlushesOnWindowBoundary(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)}
	enc, err := NewEncoder("json")
	require.NoError(t, err)

	sink, err := NewRollingFileSink(RollingFileConfig{
		Dir:             dir,
		IntervalMinutes: 5,
		Encoder:         enc,
		Now:             clock.now,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, matchPayload(1, "first")))
	clock.advance(2 * time.Minute)
	require.NoError(t, sink.Send(ctx, matchPayload(2, "second")))

	// Still inside the 12:00 window, nothing on disk yet.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Crossing into the 12:05 window flushes the buffered batch.
	clock.advance(3 * time.Minute)
	require.NoError(t, sink.Send(ctx, matchPayload(3, "third")))

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "matches_20240601T1200.json", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"text":"first"`)
	assert.Contains(t, lines[1], `"text":"second"`)
}

func TestRollingFileSinkCloseFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 7, 0, 0, time.UTC)}
	enc, err := NewEncoder("csv")
	require.NoError(t, err)

	sink, err := NewRollingFileSink(RollingFileConfig{
		Dir:             dir,
		IntervalMinutes: 5,
		Encoder:         enc,
		Now:             clock.now,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, matchPayload(1, "tail")))
	require.NoError(t, sink.Close(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "matches_20240601T1205.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "kind,rule_id"))
	assert.Contains(t, lines[1], "tail")
}

func TestRollingFileSinkEmptyCloseIsNoop(t *testing.T) {
	dir := t.TempDir()
	enc, err := NewEncoder("json")
	require.NoError(t, err)

	sink, err := NewRollingFileSink(RollingFileConfig{
		Dir:     dir,
		Encoder: enc,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type stubSink struct {
	name    string
	sendErr error
	sent    []*domain.SinkPayload
	closed  bool
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Send(ctx context.Context, p *domain.SinkPayload) error {
	s.sent = append(s.sent, p)
	return s.sendErr
}

func (s *stubSink) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func TestDispatcherIsolatesFailingSink(t *testing.T) {
	failing := &stubSink{name: "broken", sendErr: errors.New("connection refused")}
	healthy := &stubSink{name: "healthy"}
	d := NewDispatcher(zerolog.Nop(), failing, healthy)

	p := matchPayload(1, "hello")
	d.Run(context.Background(), []string{"broken", "healthy"}, p, "watch-1", "listen")

	assert.Len(t, failing.sent, 1)
	require.Len(t, healthy.sent, 1)
	assert.Equal(t, "watch-1", healthy.sent[0].RuleID)
	assert.Equal(t, "listen", healthy.sent[0].Source)
	assert.False(t, healthy.sent[0].At.IsZero())
}

func TestDispatcherSkipsUnknownSink(t *testing.T) {
	known := &stubSink{name: "known"}
	d := NewDispatcher(zerolog.Nop(), known)

	d.Run(context.Background(), []string{"missing", "known"}, matchPayload(1, "x"), "watch-1", "listen")

	assert.Len(t, known.sent, 1)
}

func TestDispatcherBroadcastAndClose(t *testing.T) {
	a := &stubSink{name: "a"}
	b := &stubSink{name: "b"}
	d := NewDispatcher(zerolog.Nop(), a, b)

	d.Broadcast(context.Background(), &domain.SinkPayload{Kind: domain.PayloadShutdown}, "pipeline")
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)

	d.Close(context.Background())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

type stubBot struct {
	sent []*bot.SendMessageParams
	err  error
}

func (s *stubBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (any, error) {
	s.sent = append(s.sent, params)
	return nil, s.err
}

func newTestTelegramSink(t *testing.T, b notifierBot, clock *fakeClock) *TelegramSink {
	t.Helper()
	sink, err := NewTelegramSink(TelegramSinkConfig{
		ChatID:      -100,
		DedupWindow: time.Hour,
		Bot:         b,
		Now:         clock.now,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return sink
}

func TestTelegramSinkSuppressesRepeatWithinWindow(t *testing.T) {
	b := &stubBot{}
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	sink := newTestTelegramSink(t, b, clock)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, matchPayload(1, "same content")))
	clock.advance(10 * time.Minute)
	require.NoError(t, sink.Send(ctx, matchPayload(2, "same content")))

	assert.Len(t, b.sent, 1)
}

func TestTelegramSinkResendsAfterWindowExpires(t *testing.T) {
	b := &stubBot{}
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	sink := newTestTelegramSink(t, b, clock)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, matchPayload(1, "same content")))
	clock.advance(2 * time.Hour)
	require.NoError(t, sink.Send(ctx, matchPayload(2, "same content")))

	require.Len(t, b.sent, 2)
	assert.Contains(t, b.sent[0].Text, "same content")
}

func TestTelegramSinkFormatsMatchWithContext(t *testing.T) {
	b := &stubBot{}
	clock := &fakeClock{t: time.Now()}
	sink := newTestTelegramSink(t, b, clock)

	p := matchPayload(1, "body text")
	p.Group = &domain.Group{ID: 100, Title: "Regional News"}
	p.Sender = &domain.User{ID: 7, Username: "reporter"}
	require.NoError(t, sink.Send(context.Background(), p))

	require.Len(t, b.sent, 1)
	assert.Equal(t, "[watch-1] Regional News / @reporter\nbody text", b.sent[0].Text)
}

func TestTelegramSinkIgnoresOperationalSignals(t *testing.T) {
	b := &stubBot{}
	clock := &fakeClock{t: time.Now()}
	sink := newTestTelegramSink(t, b, clock)

	require.NoError(t, sink.Send(context.Background(), &domain.SinkPayload{Kind: domain.PayloadKeepalive}))
	assert.Empty(t, b.sent)
}

func TestIndexProjectionShapes(t *testing.T) {
	p := matchPayload(5, "match text")
	p.Group = &domain.Group{ID: 100, Title: "Regional News"}
	p.Sender = &domain.User{ID: 7, Username: "reporter"}

	doc, key, err := project(p)
	require.NoError(t, err)
	assert.Equal(t, "100", key)
	match, ok := doc.(matchDocument)
	require.True(t, ok)
	assert.Equal(t, "match", match.Kind)
	assert.Equal(t, int64(5), match.MessageID)
	assert.Equal(t, "Regional News", match.GroupName)
	assert.Equal(t, "@reporter", match.Sender)

	doc, key, err = project(&domain.SinkPayload{
		Kind:   domain.PayloadKeepalive,
		Source: "listen",
		At:     time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "keepalive", key)
	signal, ok := doc.(signalDocument)
	require.True(t, ok)
	assert.Equal(t, "listen", signal.Source)
}

type finderGroupStore struct {
	groups map[int64]*domain.Group
}

func (s *finderGroupStore) Upsert(ctx context.Context, g *domain.Group) error { return nil }
func (s *finderGroupStore) Get(ctx context.Context, id int64) (*domain.Group, error) {
	if g, ok := s.groups[id]; ok {
		return g, nil
	}
	return nil, domain.ErrGroupNotFound
}
func (s *finderGroupStore) ByUsername(ctx context.Context, username string) (*domain.Group, error) {
	return nil, domain.ErrGroupNotFound
}
func (s *finderGroupStore) All(ctx context.Context) ([]domain.Group, error) { return nil, nil }

func TestCompileRulesRejectsBadRegex(t *testing.T) {
	_, err := CompileRules([]config.FinderRule{
		{ID: "bad", Regex: "(unclosed", Sinks: []string{"rolling_file"}},
	})
	assert.ErrorIs(t, err, domain.ErrBadFilterPattern)
}

func TestFinderRoutesMatchesToRuleSinks(t *testing.T) {
	rules, err := CompileRules([]config.FinderRule{
		{ID: "urgent", Keywords: "Alert, Breaking", Sinks: []string{"a"}},
		{ID: "creds", Regex: `password\s*[:=]`, Sinks: []string{"b"}},
	})
	require.NoError(t, err)

	a := &stubSink{name: "a"}
	b := &stubSink{name: "b"}
	f := NewFinder(FinderConfig{
		Rules:      rules,
		Dispatcher: NewDispatcher(zerolog.Nop(), a, b),
		Groups:     &finderGroupStore{groups: map[int64]*domain.Group{100: {ID: 100, Title: "Feed"}}},
		Source:     "listen",
		Logger:     zerolog.Nop(),
	})

	ctx := context.Background()
	f.Inspect(ctx, matchPayload(1, "BREAKING story tonight").Message)
	f.Inspect(ctx, matchPayload(2, "Password: hunter2").Message)
	f.Inspect(ctx, matchPayload(3, "nothing to see").Message)

	require.Len(t, a.sent, 1)
	assert.Equal(t, "urgent", a.sent[0].RuleID)
	assert.Equal(t, "listen", a.sent[0].Source)
	require.NotNil(t, a.sent[0].Group)
	assert.Equal(t, "Feed", a.sent[0].Group.Title)

	require.Len(t, b.sent, 1)
	assert.Equal(t, "creds", b.sent[0].RuleID)
}

func TestEncoderSelection(t *testing.T) {
	for _, name := range []string{"csv", "html", "json", "gob"} {
		enc, err := NewEncoder(name)
		require.NoError(t, err)
		assert.Equal(t, "."+name, enc.Ext())
	}
	_, err := NewEncoder("yaml")
	assert.Error(t, err)
}
