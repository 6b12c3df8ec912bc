// Package sync pulls message history into the store: bulk backfill over
// paged history reads and a live listener fed by the update stream.
package sync

import (
	"context"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

// MediaClassifier stores a message's attachment and returns the media
// row ID, or nil when nothing was stored.
type MediaClassifier interface {
	ClassifyAndStore(ctx context.Context, raw *domain.RawMessage) (*int64, error)
}

// Ingestor turns normalized messages into persisted rows. Backfill and
// live listening share it so both paths produce identical rows.
type Ingestor struct {
	messages   domain.MessageStore
	classifier MediaClassifier // optional
	onIngested func(ctx context.Context, m *domain.Message)
	logger     zerolog.Logger
}

func NewIngestor(messages domain.MessageStore, classifier MediaClassifier, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		messages:   messages,
		classifier: classifier,
		logger:     logger.With().Str("component", "ingestor").Logger(),
	}
}

// OnIngested installs a callback invoked for every newly written row.
// The live listener hangs the finder rule set off it.
func (i *Ingestor) OnIngested(fn func(ctx context.Context, m *domain.Message)) {
	i.onIngested = fn
}

// Ingest persists one message and reports whether a new row was
// written. Service messages are skipped; a duplicate row is success.
func (i *Ingestor) Ingest(ctx context.Context, raw *domain.RawMessage) (bool, error) {
	if raw.Service {
		return false, nil
	}

	row := &domain.Message{
		ID:          raw.ID,
		GroupID:     raw.GroupID,
		Date:        raw.Date,
		Text:        raw.Text,
		RawText:     raw.RawText,
		FromID:      raw.FromID,
		IsReply:     raw.IsReply,
		ReplyToID:   raw.ReplyToID,
		RecipientID: raw.RecipientID,
	}
	if raw.SenderIsUser {
		row.SenderType = domain.SenderTypeUser
	}

	if i.classifier != nil && raw.Attachment != nil {
		mediaID, err := i.classifier.ClassifyAndStore(ctx, raw)
		if err != nil {
			i.logger.Error().Err(err).
				Int64("group_id", raw.GroupID).
				Int64("message_id", raw.ID).
				Msg("media classification failed")
		}
		row.MediaID = mediaID
	}

	inserted, err := i.messages.Insert(ctx, row)
	if err != nil {
		return false, err
	}
	metrics.GetDefaultMetrics().RecordIngest(inserted)
	if !inserted {
		i.logger.Debug().
			Int64("group_id", raw.GroupID).
			Int64("message_id", raw.ID).
			Msg("duplicate message, kept existing row")
		return false, nil
	}
	if i.onIngested != nil {
		i.onIngested(ctx, row)
	}
	return true, nil
}
