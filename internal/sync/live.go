package sync

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/cache"
	"gramwatch/internal/infrastructure/metrics"
)

// Listener ingests messages from the live update stream. Groups and
// senders not yet in the store are resolved and persisted lazily.
type Listener struct {
	client  domain.TelegramClient
	groups  domain.GroupStore
	users   domain.UserStore
	ingest  *Ingestor
	allowed map[int64]bool
	recent  *cache.RecentMessages
	logger  zerolog.Logger
}

type ListenerConfig struct {
	Client   domain.TelegramClient
	Groups   domain.GroupStore
	Users    domain.UserStore
	Ingestor *Ingestor
	// GroupFilter, when non-empty, restricts ingestion to these groups.
	GroupFilter []int64
	Logger      zerolog.Logger
}

func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{
		client:  cfg.Client,
		groups:  cfg.Groups,
		users:   cfg.Users,
		ingest:  cfg.Ingestor,
		allowed: lo.SliceToMap(cfg.GroupFilter, func(id int64) (int64, bool) { return id, true }),
		recent:  cache.NewRecentMessages(100, cfg.Logger),
		logger:  cfg.Logger.With().Str("component", "listener").Logger(),
	}
}

// Listen registers the message handler, replays anything missed since
// the last disconnect, then blocks until the context is cancelled.
func (l *Listener) Listen(ctx context.Context) error {
	l.client.OnNewMessage(l.handle)

	if err := l.client.CatchUp(ctx); err != nil {
		return err
	}

	l.logger.Info().Int("group_filter", len(l.allowed)).Msg("live listening")
	err := l.client.RunUntilCancelled(ctx)
	l.logger.Info().Msg("live listening stopped")
	return err
}

// handle ingests one live message. Unknown groups and senders are
// resolved on first sight; resolution failures are warned and do not
// drop the message.
func (l *Listener) handle(ctx context.Context, raw *domain.RawMessage) error {
	metrics.GetDefaultMetrics().LiveUpdates.Inc()

	if len(l.allowed) > 0 && !l.allowed[raw.GroupID] {
		return nil
	}
	// Gap recovery can replay an update the dispatcher already
	// delivered; the insert would be a no-op anyway, this just skips
	// the resolution round trips.
	if l.recent.Seen(raw.GroupID, raw.ID) {
		return nil
	}

	if _, err := l.groups.Get(ctx, raw.GroupID); errors.Is(err, domain.ErrGroupNotFound) {
		l.logger.Warn().
			Int64("group_id", raw.GroupID).
			Msg("message from unknown group, resolving")
		if g, rerr := l.client.ResolveGroup(ctx, raw.GroupID); rerr != nil {
			l.logger.Warn().Err(rerr).Int64("group_id", raw.GroupID).Msg("group resolution failed")
		} else if uerr := l.groups.Upsert(ctx, g); uerr != nil {
			return uerr
		}
	} else if err != nil {
		return err
	}

	if raw.FromID != nil {
		if _, err := l.users.Get(ctx, *raw.FromID); errors.Is(err, domain.ErrUserNotFound) {
			if u, rerr := l.client.ResolveUser(ctx, *raw.FromID); rerr != nil {
				l.logger.Warn().Err(rerr).Int64("user_id", *raw.FromID).Msg("sender resolution failed")
			} else if uerr := l.users.Upsert(ctx, u); uerr != nil {
				return uerr
			}
		} else if err != nil {
			return err
		}
	}

	_, err := l.ingest.Ingest(ctx, raw)
	return err
}
