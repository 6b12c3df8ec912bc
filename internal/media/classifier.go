package media

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

// TextExtractor pulls text out of a stored image. Extraction failures
// must come back as an empty string, never as a blocking error.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Archiver ships a stored file to long-term object storage.
type Archiver interface {
	Archive(ctx context.Context, localPath, objectName string) error
}

// DirProvider yields the on-disk directory for a group's media files.
type DirProvider interface {
	Dir(groupID int64) string
}

// Classifier routes each attachment to its handler and records the
// outcome in the owning group's media shard.
type Classifier struct {
	client      domain.TelegramClient
	store       domain.MediaStore
	dirs        DirProvider
	ocr         TextExtractor
	archiver    Archiver
	maxFileSize int64
	download    bool
	logger      zerolog.Logger
}

type ClassifierConfig struct {
	Client      domain.TelegramClient
	Store       domain.MediaStore
	Dirs        DirProvider
	OCR         TextExtractor // optional
	Archiver    Archiver      // optional
	MaxFileSize int64
	Download    bool
	Logger      zerolog.Logger
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 256_000_000
	}
	return &Classifier{
		client:      cfg.Client,
		store:       cfg.Store,
		dirs:        cfg.Dirs,
		ocr:         cfg.OCR,
		archiver:    cfg.Archiver,
		maxFileSize: cfg.MaxFileSize,
		download:    cfg.Download,
		logger:      cfg.Logger.With().Str("component", "media_classifier").Logger(),
	}
}

// ClassifyAndStore processes the message's attachment, if any, and
// returns the generated media row ID. A nil ID with nil error means the
// attachment was deliberately not stored. Attachment-level failures are
// logged and skipped; they never break message ingestion.
func (c *Classifier) ClassifyAndStore(ctx context.Context, raw *domain.RawMessage) (*int64, error) {
	att := raw.Attachment
	if att == nil || att.Kind == domain.AttachmentNone {
		return nil, nil
	}

	h := handlerFor(att)
	if h.extract == nil {
		c.logger.Debug().
			Int64("group_id", raw.GroupID).
			Int64("message_id", raw.ID).
			Str("kind", att.Kind.String()).
			Msg("attachment kind ignored")
		metrics.GetDefaultMetrics().RecordMediaSkipped("unsupported_kind")
		return nil, nil
	}

	// Strictly greater than the cutoff skips; the boundary itself is
	// still downloaded.
	if att.Size > c.maxFileSize {
		c.logger.Warn().
			Int64("group_id", raw.GroupID).
			Int64("message_id", raw.ID).
			Int64("size", att.Size).
			Int64("max", c.maxFileSize).
			Msg("attachment exceeds size cutoff, skipping")
		metrics.GetDefaultMetrics().RecordMediaSkipped("size_limit")
		return nil, nil
	}

	row := h.extract(raw)

	var storedPath string
	if c.download && h.download != nil {
		path, err := h.download(ctx, c.client, raw, c.dirs.Dir(raw.GroupID))
		if err != nil {
			c.logger.Error().Err(err).
				Int64("group_id", raw.GroupID).
				Int64("message_id", raw.ID).
				Str("handler", h.name).
				Msg("attachment download failed, skipping")
			return nil, nil
		}
		storedPath = path
		// The photo downloader may have rewritten the extension once
		// the real format was known.
		row.FileName = filepath.Base(path)
		row.Ext = filepath.Ext(path)
	}

	if storedPath != "" && c.ocr != nil && row.IsImage() {
		text, err := c.ocr.ExtractText(ctx, storedPath)
		if err != nil {
			c.logger.Debug().Err(err).Str("path", storedPath).Msg("ocr failed")
			text = ""
		}
		row.OcrText = text
	}

	if storedPath != "" && c.archiver != nil {
		objectName := filepath.Join(strconv.FormatInt(raw.GroupID, 10), row.FileName)
		if err := c.archiver.Archive(ctx, storedPath, objectName); err != nil {
			c.logger.Warn().Err(err).Str("object", objectName).Msg("archive upload failed")
		}
	}

	id, err := c.store.Insert(ctx, row)
	if err != nil {
		c.logger.Error().Err(err).
			Int64("group_id", raw.GroupID).
			Int64("message_id", raw.ID).
			Msg("media row insert failed, skipping")
		return nil, nil
	}
	metrics.GetDefaultMetrics().RecordMediaStored(storedPath != "")
	return &id, nil
}
