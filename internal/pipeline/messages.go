package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/sync"
)

// DownloadMessages backfills every stored group's history.
type DownloadMessages struct {
	backfiller *sync.Backfiller
	logger     zerolog.Logger
}

func NewDownloadMessages(backfiller *sync.Backfiller, logger zerolog.Logger) *DownloadMessages {
	return &DownloadMessages{backfiller: backfiller, logger: logger}
}

func (m *DownloadMessages) Name() string { return "download_messages" }

func (m *DownloadMessages) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *DownloadMessages) Run(ctx context.Context) error {
	added, err := m.backfiller.SyncAll(ctx)
	if err != nil {
		return err
	}
	m.logger.Info().Int("added", added).Msg("backfill run complete")
	return nil
}
