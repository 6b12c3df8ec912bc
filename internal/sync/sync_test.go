package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

type mockClient struct {
	domain.TelegramClient
	iterFunc         func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error)
	resolveGroupFunc func(ctx context.Context, groupID int64) (*domain.Group, error)
	resolveUserFunc  func(ctx context.Context, userID int64) (*domain.User, error)
	handler          domain.NewMessageHandler
}

func (m *mockClient) IterMessages(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
	return m.iterFunc(ctx, group, minID, limit)
}

func (m *mockClient) ResolveGroup(ctx context.Context, groupID int64) (*domain.Group, error) {
	return m.resolveGroupFunc(ctx, groupID)
}

func (m *mockClient) ResolveUser(ctx context.Context, userID int64) (*domain.User, error) {
	return m.resolveUserFunc(ctx, userID)
}

func (m *mockClient) OnNewMessage(h domain.NewMessageHandler) { m.handler = h }
func (m *mockClient) CatchUp(ctx context.Context) error       { return nil }
func (m *mockClient) RunUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// memMessageStore mimics the composite-key insert semantics of the real
// repository.
type memMessageStore struct {
	rows map[[2]int64]*domain.Message
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{rows: make(map[[2]int64]*domain.Message)}
}

func (s *memMessageStore) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	key := [2]int64{m.GroupID, m.ID}
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = m
	return true, nil
}

func (s *memMessageStore) MaxID(ctx context.Context, groupID int64) (int64, error) {
	var max int64
	for key := range s.rows {
		if key[0] == groupID && key[1] > max {
			max = key[1]
		}
	}
	return max, nil
}

func (s *memMessageStore) ForGroup(ctx context.Context, groupID int64, since time.Time, ascending bool) ([]domain.Message, error) {
	return nil, nil
}

func (s *memMessageStore) Count(ctx context.Context, groupID int64) (int64, error) {
	return int64(len(s.rows)), nil
}

func (s *memMessageStore) DeleteOlderThan(ctx context.Context, groupID int64, cutoff time.Time) ([]domain.Message, error) {
	return nil, nil
}

type memGroupStore struct {
	groups map[int64]*domain.Group
}

func (s *memGroupStore) Upsert(ctx context.Context, g *domain.Group) error {
	s.groups[g.ID] = g
	return nil
}

func (s *memGroupStore) Get(ctx context.Context, id int64) (*domain.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return g, nil
}

func (s *memGroupStore) ByUsername(ctx context.Context, username string) (*domain.Group, error) {
	return nil, domain.ErrGroupNotFound
}

func (s *memGroupStore) All(ctx context.Context) ([]domain.Group, error) {
	var out []domain.Group
	for _, g := range s.groups {
		out = append(out, *g)
	}
	return out, nil
}

type memUserStore struct {
	users map[int64]*domain.User
}

func (s *memUserStore) Upsert(ctx context.Context, u *domain.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func rawMsg(id, groupID int64) domain.RawMessage {
	return domain.RawMessage{
		ID:      id,
		GroupID: groupID,
		Date:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		Text:    "m",
		RawText: "m",
	}
}

func TestIngest_DuplicateIsSuccess(t *testing.T) {
	store := newMemMessageStore()
	ing := NewIngestor(store, nil, zerolog.Nop())

	msg := rawMsg(1, 10)
	first, err := ing.Ingest(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := ing.Ingest(context.Background(), &msg)
	require.NoError(t, err)
	assert.False(t, second, "duplicate insert is a silent no-op")
	assert.Len(t, store.rows, 1)
}

func TestIngest_ServiceMessageSkipped(t *testing.T) {
	store := newMemMessageStore()
	ing := NewIngestor(store, nil, zerolog.Nop())

	inserted, err := ing.Ingest(context.Background(), &domain.RawMessage{ID: 2, GroupID: 10, Service: true})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Empty(t, store.rows)
}

func TestIngest_SenderType(t *testing.T) {
	store := newMemMessageStore()
	ing := NewIngestor(store, nil, zerolog.Nop())

	from := int64(55)
	msg := rawMsg(3, 10)
	msg.FromID = &from
	msg.SenderIsUser = true

	_, err := ing.Ingest(context.Background(), &msg)
	require.NoError(t, err)
	assert.Equal(t, domain.SenderTypeUser, store.rows[[2]int64{10, 3}].SenderType)
}

func TestSyncGroup_OffsetMonotonicity(t *testing.T) {
	store := newMemMessageStore()
	ing := NewIngestor(store, nil, zerolog.Nop())

	var requestedOffsets []int64
	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		requestedOffsets = append(requestedOffsets, minID)
		switch minID {
		case 0:
			return []domain.RawMessage{rawMsg(1, 10), rawMsg(2, 10), rawMsg(3, 10)}, nil
		case 3:
			return []domain.RawMessage{rawMsg(4, 10), rawMsg(5, 10)}, nil
		default:
			return nil, nil
		}
	}}

	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Messages: store,
		Ingestor: ing,
		PageSize: 3,
		Logger:   zerolog.Nop(),
	})

	added, err := b.SyncGroup(context.Background(), &domain.Group{ID: 10})

	require.NoError(t, err)
	assert.Equal(t, 5, added)
	assert.Equal(t, []int64{0, 3, 5}, requestedOffsets, "offset only moves forward")
}

func TestSyncGroup_UnchangedSourceTerminatesImmediately(t *testing.T) {
	store := newMemMessageStore()
	for id := int64(1); id <= 3; id++ {
		msg := rawMsg(id, 10)
		_, err := NewIngestor(store, nil, zerolog.Nop()).Ingest(context.Background(), &msg)
		require.NoError(t, err)
	}

	calls := 0
	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		calls++
		assert.Equal(t, int64(3), minID, "resumes from highest persisted id")
		return nil, nil
	}}

	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Messages: store,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		PageSize: 500,
		Logger:   zerolog.Nop(),
	})

	added, err := b.SyncGroup(context.Background(), &domain.Group{ID: 10})

	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 1, calls, "empty page is terminal")
}

func TestSyncGroup_ServiceMessagesAdvanceOffset(t *testing.T) {
	store := newMemMessageStore()
	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		if minID == 0 {
			svc := domain.RawMessage{ID: 2, GroupID: 10, Service: true}
			return []domain.RawMessage{rawMsg(1, 10), svc, rawMsg(3, 10)}, nil
		}
		assert.Equal(t, int64(3), minID)
		return nil, nil
	}}

	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Messages: store,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})

	added, err := b.SyncGroup(context.Background(), &domain.Group{ID: 10})

	require.NoError(t, err)
	assert.Equal(t, 2, added, "service rows are not persisted")
	assert.Len(t, store.rows, 2)
}

func TestSyncGroup_ServiceOnlyPageDoesNotTerminate(t *testing.T) {
	store := newMemMessageStore()
	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		switch minID {
		case 0:
			return []domain.RawMessage{rawMsg(1, 10), rawMsg(2, 10)}, nil
		case 2:
			return []domain.RawMessage{
				{ID: 3, GroupID: 10, Service: true},
				{ID: 4, GroupID: 10, Service: true},
			}, nil
		case 4:
			return []domain.RawMessage{rawMsg(5, 10), rawMsg(6, 10)}, nil
		default:
			return nil, nil
		}
	}}

	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Messages: store,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		PageSize: 2,
		Logger:   zerolog.Nop(),
	})

	added, err := b.SyncGroup(context.Background(), &domain.Group{ID: 10})

	require.NoError(t, err)
	assert.Equal(t, 4, added, "history beyond a service-only page is still ingested")
	assert.Contains(t, store.rows, [2]int64{10, 6})
}

func TestSyncAll_RestrictedGroupSkipped(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{
		1: {ID: 1, Title: "open"},
		2: {ID: 2, Title: "locked"},
	}}

	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		if group.ID == 2 {
			return nil, domain.ErrGroupRestricted
		}
		if minID == 0 {
			return []domain.RawMessage{rawMsg(1, group.ID)}, nil
		}
		return nil, nil
	}}

	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Groups:   groups,
		Messages: store,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})

	added, err := b.SyncAll(context.Background())

	require.NoError(t, err, "restricted group must not abort the run")
	assert.Equal(t, 1, added)
}

func TestSyncAll_GroupFilterSkipsDisallowed(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{
		1: {ID: 1, Title: "watched"},
		2: {ID: 2, Title: "ignored"},
	}}

	var synced []int64
	client := &mockClient{iterFunc: func(ctx context.Context, group *domain.Group, minID int64, limit int) ([]domain.RawMessage, error) {
		synced = append(synced, group.ID)
		return nil, nil
	}}

	cfg := config.SyncConfig{GroupFilter: []int64{1}}
	b := NewBackfiller(BackfillerConfig{
		Client:   client,
		Groups:   groups,
		Messages: store,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Allowed:  cfg.GroupAllowed,
		Logger:   zerolog.Nop(),
	})

	_, err := b.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, synced, "filtered groups are never fetched")
}

func TestListener_AllowListDiscards(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{10: {ID: 10}}}
	users := &memUserStore{users: map[int64]*domain.User{}}
	client := &mockClient{}

	l := NewListener(ListenerConfig{
		Client:      client,
		Groups:      groups,
		Users:       users,
		Ingestor:    NewIngestor(store, nil, zerolog.Nop()),
		GroupFilter: []int64{10},
		Logger:      zerolog.Nop(),
	})

	client.OnNewMessage(l.handle)

	other := rawMsg(1, 99)
	require.NoError(t, client.handler(context.Background(), &other))
	assert.Empty(t, store.rows, "messages outside the allow list are discarded")

	allowed := rawMsg(2, 10)
	require.NoError(t, client.handler(context.Background(), &allowed))
	assert.Len(t, store.rows, 1)
}

func TestListener_LazyGroupAndSenderResolution(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{}}
	users := &memUserStore{users: map[int64]*domain.User{}}

	client := &mockClient{
		resolveGroupFunc: func(ctx context.Context, groupID int64) (*domain.Group, error) {
			return &domain.Group{ID: groupID, Title: "found"}, nil
		},
		resolveUserFunc: func(ctx context.Context, userID int64) (*domain.User, error) {
			return &domain.User{ID: userID, Username: "lazy"}, nil
		},
	}

	l := NewListener(ListenerConfig{
		Client:   client,
		Groups:   groups,
		Users:    users,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	client.OnNewMessage(l.handle)

	from := int64(55)
	msg := rawMsg(1, 77)
	msg.FromID = &from
	msg.SenderIsUser = true

	require.NoError(t, client.handler(context.Background(), &msg))

	assert.Contains(t, groups.groups, int64(77), "unknown group upserted")
	assert.Contains(t, users.users, int64(55), "unknown sender upserted")
	assert.Len(t, store.rows, 1)
}

func TestListener_ResolutionFailureStillIngests(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{}}
	users := &memUserStore{users: map[int64]*domain.User{}}

	client := &mockClient{
		resolveGroupFunc: func(ctx context.Context, groupID int64) (*domain.Group, error) {
			return nil, domain.ErrGroupNotFound
		},
	}

	l := NewListener(ListenerConfig{
		Client:   client,
		Groups:   groups,
		Users:    users,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	client.OnNewMessage(l.handle)

	msg := rawMsg(1, 77)
	require.NoError(t, client.handler(context.Background(), &msg))
	assert.Len(t, store.rows, 1, "resolution failure must not drop the message")
}

func TestListener_RedeliveredUpdateDiscarded(t *testing.T) {
	store := newMemMessageStore()
	groups := &memGroupStore{groups: map[int64]*domain.Group{10: {ID: 10}}}
	users := &memUserStore{users: map[int64]*domain.User{}}

	resolutions := 0
	client := &mockClient{
		resolveGroupFunc: func(ctx context.Context, groupID int64) (*domain.Group, error) {
			resolutions++
			return &domain.Group{ID: groupID}, nil
		},
	}

	l := NewListener(ListenerConfig{
		Client:   client,
		Groups:   groups,
		Users:    users,
		Ingestor: NewIngestor(store, nil, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	client.OnNewMessage(l.handle)

	msg := rawMsg(1, 10)
	require.NoError(t, client.handler(context.Background(), &msg))
	replay := rawMsg(1, 10)
	require.NoError(t, client.handler(context.Background(), &replay))

	assert.Len(t, store.rows, 1)
	assert.Zero(t, resolutions, "known group needs no resolution")
}
