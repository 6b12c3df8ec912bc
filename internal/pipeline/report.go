package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
	"gramwatch/internal/export"
	"gramwatch/internal/infrastructure/metrics"
	"gramwatch/internal/report"
)

// ReportOptions are the per-run parameters shared by the reporting and
// export modules, filled from CLI flags.
type ReportOptions struct {
	// GroupID selects one group; zero means every stored group.
	GroupID  int64
	Filter   report.FilterSpec
	Radius   int
	Order    report.Order
	AgeLimit time.Duration
	OutDir   string
}

// reportDeps bundles the stores the report engine is built from. One
// engine is constructed per group so its asset directory stays
// group-scoped.
type reportDeps struct {
	groups   domain.GroupStore
	messages domain.MessageStore
	media    domain.MediaStore
	users    domain.UserStore
	dirs     report.MediaDirProvider
	suppress bool
	logger   zerolog.Logger
}

type ReportDepsConfig struct {
	Groups           domain.GroupStore
	Messages         domain.MessageStore
	Media            domain.MediaStore
	Users            domain.UserStore
	Dirs             report.MediaDirProvider
	SuppressRepeated bool
	Logger           zerolog.Logger
}

func newReportDeps(cfg ReportDepsConfig) reportDeps {
	return reportDeps{
		groups:   cfg.Groups,
		messages: cfg.Messages,
		media:    cfg.Media,
		users:    cfg.Users,
		dirs:     cfg.Dirs,
		suppress: cfg.SuppressRepeated,
		logger:   cfg.Logger,
	}
}

func (d *reportDeps) selectGroups(ctx context.Context, groupID int64) ([]domain.Group, error) {
	if groupID != 0 {
		g, err := d.groups.Get(ctx, groupID)
		if err != nil {
			return nil, err
		}
		return []domain.Group{*g}, nil
	}
	return d.groups.All(ctx)
}

func (d *reportDeps) engineFor(groupID int64, outDir string) *report.Engine {
	return report.NewEngine(report.EngineConfig{
		Messages:         d.messages,
		Media:            d.media,
		Users:            d.users,
		Dirs:             d.dirs,
		AssetDir:         filepath.Join(outDir, fmt.Sprintf("assets_%d", groupID)),
		SuppressRepeated: d.suppress,
		Logger:           d.logger,
	})
}

// Report renders the HTML report for the selected groups.
type Report struct {
	deps   reportDeps
	opts   ReportOptions
	logger zerolog.Logger
}

func NewReport(deps ReportDepsConfig, opts ReportOptions) *Report {
	return &Report{
		deps:   newReportDeps(deps),
		opts:   opts,
		logger: deps.Logger.With().Str("component", "report").Logger(),
	}
}

func (m *Report) Name() string { return "report" }

func (m *Report) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *Report) Run(ctx context.Context) error {
	groups, err := m.deps.selectGroups(ctx, m.opts.GroupID)
	if err != nil {
		return err
	}
	runLog := m.logger.With().Str("run_id", uuid.NewString()).Logger()
	for i := range groups {
		g := &groups[i]
		start := time.Now()
		engine := m.deps.engineFor(g.ID, m.opts.OutDir)
		entries, err := engine.Generate(ctx, g, m.opts.Filter, m.opts.Radius, m.opts.Order, m.opts.AgeLimit)
		if err != nil {
			return err
		}
		metrics.GetDefaultMetrics().RecordReport(len(entries), time.Since(start).Seconds())
		if len(entries) == 0 {
			runLog.Info().Int64("group_id", g.ID).Msg("nothing to report")
			continue
		}
		path, err := report.WriteHTMLReport(m.opts.OutDir, g, entries)
		if err != nil {
			return err
		}
		runLog.Info().
			Int64("group_id", g.ID).
			Int("entries", len(entries)).
			Str("path", path).
			Msg("report written")
	}
	return nil
}

// ExportText writes the plain-text export, the regex-filter variant of
// reporting.
type ExportText struct {
	deps   reportDeps
	opts   ReportOptions
	logger zerolog.Logger
}

func NewExportText(deps ReportDepsConfig, opts ReportOptions) *ExportText {
	return &ExportText{
		deps:   newReportDeps(deps),
		opts:   opts,
		logger: deps.Logger.With().Str("component", "export_text").Logger(),
	}
}

func (m *ExportText) Name() string { return "export_text" }

func (m *ExportText) Enabled(cfg *config.Config) bool { return enabled(cfg, m.Name()) }

func (m *ExportText) Run(ctx context.Context) error {
	groups, err := m.deps.selectGroups(ctx, m.opts.GroupID)
	if err != nil {
		return err
	}
	for i := range groups {
		g := &groups[i]
		engine := m.deps.engineFor(g.ID, m.opts.OutDir)
		entries, err := engine.Generate(ctx, g, m.opts.Filter, m.opts.Radius, m.opts.Order, m.opts.AgeLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		path, err := report.WriteTextExport(m.opts.OutDir, g, entries)
		if err != nil {
			return err
		}
		m.logger.Info().
			Int64("group_id", g.ID).
			Int("entries", len(entries)).
			Str("path", path).
			Msg("text export written")
	}
	return nil
}

// SendReportTelegram pushes the matched report entries through the chat
// notifier sink, so its dedup window applies.
type SendReportTelegram struct {
	deps       reportDeps
	dispatcher *export.Dispatcher
	opts       ReportOptions
	logger     zerolog.Logger
}

func NewSendReportTelegram(deps ReportDepsConfig, dispatcher *export.Dispatcher, opts ReportOptions) *SendReportTelegram {
	return &SendReportTelegram{
		deps:       newReportDeps(deps),
		dispatcher: dispatcher,
		opts:       opts,
		logger:     deps.Logger.With().Str("component", "send_report_telegram").Logger(),
	}
}

func (m *SendReportTelegram) Name() string { return "send_report_telegram" }

func (m *SendReportTelegram) Enabled(cfg *config.Config) bool {
	return enabled(cfg, m.Name()) && cfg.Sinks.Telegram.Enabled
}

func (m *SendReportTelegram) Run(ctx context.Context) error {
	groups, err := m.deps.selectGroups(ctx, m.opts.GroupID)
	if err != nil {
		return err
	}
	sent := 0
	for i := range groups {
		g := &groups[i]
		engine := m.deps.engineFor(g.ID, m.opts.OutDir)
		entries, err := engine.Generate(ctx, g, m.opts.Filter, m.opts.Radius, m.opts.Order, m.opts.AgeLimit)
		if err != nil {
			return err
		}
		for j := range entries {
			if entries[j].Tag != report.TagMatch {
				continue
			}
			msg := entries[j].Message
			m.dispatcher.Run(ctx, []string{export.SinkNameTelegram}, &domain.SinkPayload{
				Kind:    domain.PayloadMatch,
				Message: &msg,
				Group:   g,
			}, "report", m.Name())
			sent++
		}
	}
	m.logger.Info().Int("sent", sent).Msg("report entries dispatched to chat")
	return nil
}
