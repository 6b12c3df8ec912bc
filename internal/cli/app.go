// Package cli wires the configured collaborators together and exposes
// the pipeline stages as subcommands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gramwatch/config"
	"gramwatch/internal/export"
	"gramwatch/internal/infrastructure/database"
	"gramwatch/internal/infrastructure/http/server"
	"gramwatch/internal/infrastructure/logger"
	"gramwatch/internal/infrastructure/s3"
	"gramwatch/internal/infrastructure/telegram"
	"gramwatch/internal/media"
	"gramwatch/internal/ocr"
	"gramwatch/internal/pipeline"
	"gramwatch/internal/repository"
	"gramwatch/internal/sync"
)

// App holds every long-lived collaborator a command may need. Built
// once per invocation, torn down by Close.
type App struct {
	Cfg    *config.Config
	Logger zerolog.Logger

	db     *gorm.DB
	shards *database.ShardManager

	Client   *telegram.MTProtoClient
	Groups   *repository.GroupRepository
	Users    *repository.UserRepository
	Messages *repository.MessageRepository
	Media    *repository.MediaRepository
	State    *repository.StateRepository

	Dispatcher *export.Dispatcher
	Rules      []export.Rule
}

// NewApp assembles the application from the config file. Invalid
// finder rules fail here, before any stage runs.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging.Level)

	db, err := database.Open(&cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("open main store: %w", err)
	}

	client, err := telegram.NewMTProtoClient(telegram.MTProtoClientConfig{
		APIID:             cfg.Telegram.APIID,
		APIHash:           cfg.Telegram.APIHash,
		PhoneNumber:       cfg.Telegram.Phone,
		SessionDir:        cfg.Telegram.SessionDir,
		RequestsPerSecond: cfg.Telegram.RequestsPerSecond,
		StateDB:           db,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	rules, err := export.CompileRules(cfg.Finder.Rules)
	if err != nil {
		return nil, err
	}

	shards := database.NewShardManager(cfg.Storage.MediaDir, log)

	app := &App{
		Cfg:      cfg,
		Logger:   log,
		db:       db,
		shards:   shards,
		Client:   client,
		Groups:   repository.NewGroupRepository(db),
		Users:    repository.NewUserRepository(db),
		Messages: repository.NewMessageRepository(db),
		Media:    repository.NewMediaRepository(shards),
		State:    repository.NewStateRepository(db),
		Rules:    rules,
	}

	if app.Dispatcher, err = app.buildDispatcher(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) buildDispatcher(ctx context.Context) (*export.Dispatcher, error) {
	d := export.NewDispatcher(a.Logger)

	if a.Cfg.Sinks.RollingFile.Enabled {
		enc, err := export.NewEncoder(a.Cfg.Sinks.RollingFile.Encoding)
		if err != nil {
			return nil, err
		}
		sink, err := export.NewRollingFileSink(export.RollingFileConfig{
			Dir:             a.Cfg.Sinks.RollingFile.Dir,
			IntervalMinutes: a.Cfg.Sinks.RollingFile.IntervalMinutes,
			Encoder:         enc,
			Logger:          a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create rolling file sink: %w", err)
		}
		d.Register(sink)
	}

	if a.Cfg.Sinks.Telegram.Enabled {
		sink, err := export.NewTelegramSink(export.TelegramSinkConfig{
			BotToken:    a.Cfg.Sinks.Telegram.BotToken,
			ChatID:      a.Cfg.Sinks.Telegram.ChatID,
			DedupWindow: a.Cfg.Sinks.Telegram.DedupWindow,
			Logger:      a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create telegram sink: %w", err)
		}
		d.Register(sink)
	}

	if a.Cfg.Sinks.Indexer.Enabled {
		sink, err := export.NewIndexSink(export.IndexSinkConfig{
			Brokers: a.Cfg.Sinks.Indexer.Brokers,
			Topic:   a.Cfg.Sinks.Indexer.Topic,
			Logger:  a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create index sink: %w", err)
		}
		d.Register(sink)
	}

	return d, nil
}

// buildArchiver constructs the offsite media archiver, or nil when
// archiving is off.
func (a *App) buildArchiver(ctx context.Context) (*s3.Archiver, error) {
	if !a.Cfg.S3.Enabled {
		return nil, nil
	}
	arch, err := s3.NewArchiver(&s3.Config{
		Endpoint:  a.Cfg.S3.Endpoint,
		AccessKey: a.Cfg.S3.AccessKey,
		SecretKey: a.Cfg.S3.SecretKey,
		Bucket:    a.Cfg.S3.Bucket,
		UseSSL:    a.Cfg.S3.UseSSL,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create archiver: %w", err)
	}
	if err := arch.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}
	return arch, nil
}

// purgeArchiver adapts the optional archiver for the retention purge
// without handing it a typed nil.
func purgeArchiver(arch *s3.Archiver) pipeline.MediaArchiver {
	if arch == nil {
		return nil
	}
	return arch
}

// buildClassifier assembles the media pipeline, or returns nil when
// media download is off.
func (a *App) buildClassifier(archiver *s3.Archiver) sync.MediaClassifier {
	if !a.Cfg.Sync.DownloadMedia {
		return nil
	}

	var extractor media.TextExtractor
	if a.Cfg.OCR.Enabled {
		extractor = ocr.NewReader(a.Cfg.OCR.Languages, a.Logger)
	}

	var mediaArchiver media.Archiver
	if archiver != nil {
		mediaArchiver = archiver
	}

	return media.NewClassifier(media.ClassifierConfig{
		Client:      a.Client,
		Store:       a.Media,
		Dirs:        a.shards,
		OCR:         extractor,
		Archiver:    mediaArchiver,
		MaxFileSize: a.Cfg.Media.MaxFileSize,
		Download:    true,
		Logger:      a.Logger,
	})
}

// modules builds every pipeline module; the orchestrator picks the
// requested ones by name.
func (a *App) modules(ctx context.Context, opts pipeline.ReportOptions, participants bool) ([]pipeline.Module, error) {
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	classifier := a.buildClassifier(archiver)

	backfillIngest := sync.NewIngestor(a.Messages, classifier, a.Logger)
	backfiller := sync.NewBackfiller(sync.BackfillerConfig{
		Client:    a.Client,
		Groups:    a.Groups,
		Messages:  a.Messages,
		Ingestor:  backfillIngest,
		Allowed:   a.Cfg.Sync.GroupAllowed,
		PageSize:  a.Cfg.Sync.PageSize,
		PageDelay: a.Cfg.Sync.PageDelay,
		Logger:    a.Logger,
	})

	liveFinder := export.NewFinder(export.FinderConfig{
		Rules:      a.Rules,
		Dispatcher: a.Dispatcher,
		Groups:     a.Groups,
		Users:      a.Users,
		Source:     "listen",
		Logger:     a.Logger,
	})
	liveIngest := sync.NewIngestor(a.Messages, classifier, a.Logger)
	liveIngest.OnIngested(liveFinder.Inspect)
	listener := sync.NewListener(sync.ListenerConfig{
		Client:      a.Client,
		Groups:      a.Groups,
		Users:       a.Users,
		Ingestor:    liveIngest,
		GroupFilter: a.Cfg.Sync.GroupFilter,
		Logger:      a.Logger,
	})

	srv := server.NewServer(a.Cfg.Service.Name, a.Cfg.Service.Port, a.Logger)
	srv.RegisterMetrics()
	srv.RegisterHealth(a.Client.IsConnected)

	exportFinder := export.NewFinder(export.FinderConfig{
		Rules:      a.Rules,
		Dispatcher: a.Dispatcher,
		Groups:     a.Groups,
		Users:      a.Users,
		Source:     "export_file",
		Logger:     a.Logger,
	})

	reportDeps := pipeline.ReportDepsConfig{
		Groups:           a.Groups,
		Messages:         a.Messages,
		Media:            a.Media,
		Users:            a.Users,
		Dirs:             a.shards,
		SuppressRepeated: a.Cfg.Report.SuppressRepeated,
		Logger:           a.Logger,
	}

	return []pipeline.Module{
		pipeline.NewConnect(a.Client, a.Logger),
		pipeline.NewLoadGroups(pipeline.LoadGroupsConfig{
			Client:       a.Client,
			Groups:       a.Groups,
			Users:        a.Users,
			State:        a.State,
			AvatarTTL:    a.Cfg.Retention.StateTTL,
			Participants: participants,
			Logger:       a.Logger,
		}),
		pipeline.NewDownloadMessages(backfiller, a.Logger),
		pipeline.NewListen(pipeline.ListenConfig{
			Listener:   listener,
			Dispatcher: a.Dispatcher,
			Server:     srv,
			Logger:     a.Logger,
		}),
		pipeline.NewListGroups(a.Groups, os.Stdout),
		pipeline.NewReport(reportDeps, opts),
		pipeline.NewExportText(reportDeps, opts),
		pipeline.NewExportFile(pipeline.ExportFileConfig{
			Groups:   a.Groups,
			Messages: a.Messages,
			Finder:   exportFinder,
			GroupID:  opts.GroupID,
			AgeLimit: opts.AgeLimit,
			Logger:   a.Logger,
		}),
		pipeline.NewSendReportTelegram(reportDeps, a.Dispatcher, opts),
		pipeline.NewStats(a.Groups, a.Messages, a.Media, os.Stdout),
		pipeline.NewPurgeOldData(pipeline.PurgeOldDataConfig{
			Groups:   a.Groups,
			Messages: a.Messages,
			Media:    a.Media,
			Dirs:     a.shards,
			Archiver: purgeArchiver(archiver),
			Days:     a.Cfg.Retention.Days,
			Logger:   a.Logger,
		}),
		pipeline.NewPurgeTempFiles(pipeline.PurgeTempFilesConfig{
			State:    a.State,
			TempDirs: []string{filepath.Join(a.Cfg.Storage.MediaDir, "tmp")},
			MaxAge:   a.Cfg.Retention.StateTTL,
			Logger:   a.Logger,
		}),
	}, nil
}

// Execute builds the modules and runs the named sequence through the
// orchestrator.
func (a *App) Execute(ctx context.Context, sequence []string, opts pipeline.ReportOptions, participants bool) error {
	modules, err := a.modules(ctx, opts, participants)
	if err != nil {
		return err
	}
	return pipeline.NewOrchestrator(a.Cfg, a.Logger, modules...).Execute(ctx, sequence)
}

// Close tears everything down, flushing the sinks.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Client != nil && a.Client.IsConnected() {
		if err := a.Client.Disconnect(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("telegram disconnect failed")
		}
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Close(ctx)
	}
	if a.Media != nil {
		if err := a.Media.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("media shard close failed")
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.Logger.Error().Err(err).Msg("main store close failed")
		}
	}
}
