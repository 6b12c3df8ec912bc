package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
	"gramwatch/internal/export"
)

// ExportFile replays the stored history through the finder rule set,
// routing matches to each rule's sinks (rolling file, index).
type ExportFile struct {
	groups   domain.GroupStore
	messages domain.MessageStore
	finder   *export.Finder
	groupID  int64
	ageLimit time.Duration
	logger   zerolog.Logger
}

type ExportFileConfig struct {
	Groups   domain.GroupStore
	Messages domain.MessageStore
	Finder   *export.Finder
	// GroupID selects one group; zero means every stored group.
	GroupID  int64
	AgeLimit time.Duration
	Logger   zerolog.Logger
}

func NewExportFile(cfg ExportFileConfig) *ExportFile {
	return &ExportFile{
		groups:   cfg.Groups,
		messages: cfg.Messages,
		finder:   cfg.Finder,
		groupID:  cfg.GroupID,
		ageLimit: cfg.AgeLimit,
		logger:   cfg.Logger.With().Str("component", "export_file").Logger(),
	}
}

func (m *ExportFile) Name() string { return "export_file" }

func (m *ExportFile) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *ExportFile) Run(ctx context.Context) error {
	var groups []domain.Group
	if m.groupID != 0 {
		g, err := m.groups.Get(ctx, m.groupID)
		if err != nil {
			return err
		}
		groups = []domain.Group{*g}
	} else {
		var err error
		groups, err = m.groups.All(ctx)
		if err != nil {
			return err
		}
	}

	var since time.Time
	if m.ageLimit > 0 {
		since = time.Now().UTC().Add(-m.ageLimit)
	}

	inspected := 0
	for i := range groups {
		msgs, err := m.messages.ForGroup(ctx, groups[i].ID, since, true)
		if err != nil {
			return err
		}
		for j := range msgs {
			m.finder.Inspect(ctx, &msgs[j])
		}
		inspected += len(msgs)
	}
	m.logger.Info().
		Int("groups", len(groups)).
		Int("messages", inspected).
		Msg("history replayed through finder rules")
	return nil
}
