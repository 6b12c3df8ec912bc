package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
	"gramwatch/internal/report"
)

// MediaArchiver removes offsite copies of purged media.
type MediaArchiver interface {
	Remove(ctx context.Context, objectName string) error
}

// PurgeOldData removes messages older than the retention window, the
// media rows they reference, the media files on disk and, when an
// archiver is configured, their offsite copies.
type PurgeOldData struct {
	groups   domain.GroupStore
	messages domain.MessageStore
	media    domain.MediaStore
	dirs     report.MediaDirProvider
	archiver MediaArchiver
	days     int
	now      func() time.Time
	logger   zerolog.Logger
}

type PurgeOldDataConfig struct {
	Groups   domain.GroupStore
	Messages domain.MessageStore
	Media    domain.MediaStore
	Dirs     report.MediaDirProvider
	// Archiver, when set, drops the offsite copy of each purged file.
	Archiver MediaArchiver
	Days     int
	// Now is the clock source; nil means time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewPurgeOldData(cfg PurgeOldDataConfig) *PurgeOldData {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PurgeOldData{
		groups:   cfg.Groups,
		messages: cfg.Messages,
		media:    cfg.Media,
		dirs:     cfg.Dirs,
		archiver: cfg.Archiver,
		days:     cfg.Days,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "purge_old_data").Logger(),
	}
}

func (m *PurgeOldData) Name() string { return "purge_old_data" }

func (m *PurgeOldData) Enabled(cfg *config.Config) bool {
	return enabled(cfg, m.Name()) && cfg.Retention.Days > 0
}

func (m *PurgeOldData) Run(ctx context.Context) error {
	if m.days <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", m.days)
	}
	cutoff := m.now().UTC().AddDate(0, 0, -m.days)

	groups, err := m.groups.All(ctx)
	if err != nil {
		return err
	}

	var removedRows, removedMedia int
	for i := range groups {
		g := &groups[i]
		victims, err := m.messages.DeleteOlderThan(ctx, g.ID, cutoff)
		if err != nil {
			return fmt.Errorf("purge group %d: %w", g.ID, err)
		}
		removedRows += len(victims)

		for j := range victims {
			if victims[j].MediaID == nil {
				continue
			}
			if err := m.releaseMedia(ctx, g.ID, *victims[j].MediaID); err != nil {
				m.logger.Warn().Err(err).
					Int64("group_id", g.ID).
					Int64("media_id", *victims[j].MediaID).
					Msg("media release failed")
				continue
			}
			removedMedia++
		}
	}

	m.logger.Info().
		Time("cutoff", cutoff).
		Int("messages", removedRows).
		Int("media", removedMedia).
		Msg("retention purge finished")
	return nil
}

// releaseMedia deletes the media row and its file on disk. A row that
// is already gone counts as released.
func (m *PurgeOldData) releaseMedia(ctx context.Context, groupID, mediaID int64) error {
	row, err := m.media.Get(ctx, groupID, mediaID)
	if err != nil {
		return err
	}
	if row.FileName != "" {
		path := filepath.Join(m.dirs.Dir(groupID), row.FileName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if m.archiver != nil {
			objectName := filepath.Join(strconv.FormatInt(groupID, 10), row.FileName)
			if err := m.archiver.Remove(ctx, objectName); err != nil {
				m.logger.Warn().Err(err).
					Str("object", objectName).
					Msg("archived copy removal failed")
			}
		}
	}
	return m.media.Delete(ctx, groupID, mediaID)
}

// PurgeTempFiles sweeps expired state entries and stale files in the
// configured temp directories.
type PurgeTempFiles struct {
	state    domain.StateStore
	tempDirs []string
	maxAge   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

type PurgeTempFilesConfig struct {
	State    domain.StateStore
	TempDirs []string
	// MaxAge bounds temp file lifetime; expired state rows use their
	// own per-row TTL.
	MaxAge time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewPurgeTempFiles(cfg PurgeTempFilesConfig) *PurgeTempFiles {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return &PurgeTempFiles{
		state:    cfg.State,
		tempDirs: cfg.TempDirs,
		maxAge:   cfg.MaxAge,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "purge_temp_files").Logger(),
	}
}

func (m *PurgeTempFiles) Name() string { return "purge_temp_files" }

func (m *PurgeTempFiles) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *PurgeTempFiles) Run(ctx context.Context) error {
	now := m.now().UTC()

	purged, err := m.state.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}

	var files int
	for _, dir := range m.tempDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= m.maxAge {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				m.logger.Warn().Err(err).Str("file", e.Name()).Msg("temp file removal failed")
				continue
			}
			files++
		}
	}

	m.logger.Info().
		Int64("state_entries", purged).
		Int("files", files).
		Msg("temp sweep finished")
	return nil
}
