package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

// Backfiller pulls each group's history forward from the highest
// persisted message ID until the source runs dry.
type Backfiller struct {
	client    domain.TelegramClient
	groups    domain.GroupStore
	messages  domain.MessageStore
	ingest    *Ingestor
	allowed   func(groupID int64) bool
	pageSize  int
	pageDelay time.Duration
	logger    zerolog.Logger
}

type BackfillerConfig struct {
	Client    domain.TelegramClient
	Groups    domain.GroupStore
	Messages  domain.MessageStore
	Ingestor  *Ingestor
	// Allowed, when set, restricts the sync to the groups it admits.
	Allowed   func(groupID int64) bool
	PageSize  int
	PageDelay time.Duration
	Logger    zerolog.Logger
}

func NewBackfiller(cfg BackfillerConfig) *Backfiller {
	if cfg.PageSize <= 0 || cfg.PageSize > 500 {
		cfg.PageSize = 500
	}
	return &Backfiller{
		client:    cfg.Client,
		groups:    cfg.Groups,
		messages:  cfg.Messages,
		ingest:    cfg.Ingestor,
		allowed:   cfg.Allowed,
		pageSize:  cfg.PageSize,
		pageDelay: cfg.PageDelay,
		logger:    cfg.Logger.With().Str("component", "backfiller").Logger(),
	}
}

// SyncGroup pages through the group's history after the stored offset,
// oldest first, and returns the number of newly persisted rows. The
// offset only moves forward; an empty page, or one that cannot advance
// the offset, terminates the run immediately.
func (b *Backfiller) SyncGroup(ctx context.Context, group *domain.Group) (int, error) {
	offset, err := b.messages.MaxID(ctx, group.ID)
	if err != nil {
		return 0, err
	}

	b.logger.Info().
		Int64("group_id", group.ID).
		Str("title", group.Title).
		Int64("offset", offset).
		Msg("backfill started")

	start := time.Now()
	total := 0
	for {
		page, err := b.client.IterMessages(ctx, group, offset, b.pageSize)
		if err != nil {
			return total, err
		}
		metrics.GetDefaultMetrics().RecordBackfillPage()
		if len(page) == 0 {
			break
		}

		prev := offset
		added := 0
		for i := range page {
			raw := &page[i]
			if raw.ID > offset {
				offset = raw.ID
			}
			if raw.Service {
				continue
			}
			inserted, err := b.ingest.Ingest(ctx, raw)
			if err != nil {
				return total, err
			}
			if inserted {
				added++
			}
		}
		total += added

		// A page of service rows or duplicates still moves the offset
		// past it; only a page that cannot advance is terminal.
		if offset == prev {
			break
		}
		if err := sleep(ctx, b.pageDelay); err != nil {
			return total, err
		}
	}

	metrics.GetDefaultMetrics().RecordBackfillGroup(time.Since(start).Seconds())
	b.logger.Info().
		Int64("group_id", group.ID).
		Int("added", total).
		Int64("offset", offset).
		Msg("backfill finished")
	return total, nil
}

// SyncAll backfills every stored group the filter admits. Recoverable
// per-group failures (restricted access, flood pressure) are logged and
// the group skipped; anything else aborts the run.
func (b *Backfiller) SyncAll(ctx context.Context) (int, error) {
	groups, err := b.groups.All(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := range groups {
		group := &groups[i]
		if b.allowed != nil && !b.allowed(group.ID) {
			continue
		}
		added, err := b.SyncGroup(ctx, group)
		total += added
		if err != nil {
			if errors.Is(err, domain.ErrGroupRestricted) || errors.Is(err, domain.ErrFloodWait) {
				b.logger.Warn().Err(err).
					Int64("group_id", group.ID).
					Str("title", group.Title).
					Msg("group skipped")
				continue
			}
			return total, err
		}
	}
	return total, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
