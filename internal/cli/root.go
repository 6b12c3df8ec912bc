package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gramwatch/internal/pipeline"
	"gramwatch/internal/report"
)

var cfgFile string

// reportFlags are the per-run filter parameters shared by the
// reporting and export commands.
type reportFlags struct {
	group  int64
	terms  string
	regex  string
	radius int
	days   int
	desc   bool
	outDir string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.group, "group", 0, "restrict to one group id (default: all)")
	cmd.Flags().StringVar(&f.terms, "terms", "", "comma-separated keyword filter")
	cmd.Flags().StringVar(&f.regex, "regex", "", "regex filter (case-insensitive, multiline)")
	cmd.Flags().IntVar(&f.radius, "radius", 0, "context window radius around matches")
	cmd.Flags().IntVar(&f.days, "days", 0, "age limit in days (default from config)")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "newest first")
	cmd.Flags().StringVar(&f.outDir, "out", "", "output directory (default from config)")
}

func (f *reportFlags) options(a *App) pipeline.ReportOptions {
	opts := pipeline.ReportOptions{
		GroupID: f.group,
		Filter:  report.FilterSpec{Keywords: f.terms, Regex: f.regex},
		Radius:  f.radius,
		Order:   report.OrderAscending,
		OutDir:  f.outDir,
	}
	if f.radius == 0 {
		opts.Radius = a.Cfg.Report.WindowRadius
	}
	if f.desc || !a.Cfg.Report.OrderAscending {
		opts.Order = report.OrderDescending
	}
	if f.days > 0 {
		opts.AgeLimit = time.Duration(f.days) * 24 * time.Hour
	} else {
		opts.AgeLimit = a.Cfg.Report.AgeLimit
	}
	if opts.OutDir == "" {
		opts.OutDir = a.Cfg.Storage.ReportDir
	}
	return opts
}

// runSequence loads the app and executes a fixed module sequence.
func runSequence(sequence ...string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := NewApp(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Execute(cmd.Context(), sequence, pipeline.ReportOptions{}, false)
	}
}

// runFiltered loads the app and executes a sequence driven by the
// report/export flags.
func runFiltered(flags *reportFlags, sequence ...string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := NewApp(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Execute(cmd.Context(), sequence, flags.options(app), false)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gramwatch",
		Short:         "Telegram OSINT collection and reporting pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	root.AddCommand(
		newRunCmd(),
		newConnectCmd(),
		newLoadGroupsCmd(),
		newDownloadMessagesCmd(),
		newListenCmd(),
		newListGroupsCmd(),
		newReportCmd(),
		newExportTextCmd(),
		newExportFileCmd(),
		newSendReportTelegramCmd(),
		newStatsCmd(),
		newPurgeOldDataCmd(),
		newPurgeTempFilesCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the module sequence from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Execute(cmd.Context(), app.Cfg.Pipeline.Sequence, flags.options(app), false)
		},
	}
	flags.register(cmd)
	return cmd
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Establish and store the Telegram session",
		RunE:  runSequence("connect"),
	}
}

func newLoadGroupsCmd() *cobra.Command {
	var participants bool
	cmd := &cobra.Command{
		Use:   "load-groups",
		Short: "Scrape the account's dialog list into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Execute(cmd.Context(), []string{"connect", "load_groups"},
				pipeline.ReportOptions{}, participants)
		},
	}
	cmd.Flags().BoolVar(&participants, "participants", false, "also scrape member lists")
	return cmd
}

func newDownloadMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download-messages",
		Short: "Backfill message history for every stored group",
		RunE:  runSequence("connect", "download_messages"),
	}
}

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Ingest live messages until interrupted",
		RunE:  runSequence("connect", "listen"),
	}
}

func newListGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-groups",
		Short: "Print the stored groups",
		RunE:  runSequence("list_groups"),
	}
}

func newReportCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the filtered HTML report",
		RunE:  runFiltered(flags, "report"),
	}
	flags.register(cmd)
	return cmd
}

func newExportTextCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "export-text",
		Short: "Write the plain-text export (regex filter variant)",
		RunE:  runFiltered(flags, "export_text"),
	}
	flags.register(cmd)
	return cmd
}

func newExportFileCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "export-file",
		Short: "Replay stored history through the finder rules into the sinks",
		RunE:  runFiltered(flags, "export_file"),
	}
	flags.register(cmd)
	return cmd
}

func newSendReportTelegramCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "send-report-telegram",
		Short: "Push matched report entries to the notification chat",
		RunE:  runFiltered(flags, "send_report_telegram"),
	}
	flags.register(cmd)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-group row counts",
		RunE:  runSequence("stats"),
	}
}

func newPurgeOldDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-old-data",
		Short: "Delete messages and media past the retention window",
		RunE:  runSequence("purge_old_data"),
	}
}

func newPurgeTempFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-temp-files",
		Short: "Sweep expired state entries and stale temp files",
		RunE:  runSequence("purge_temp_files"),
	}
}

// Execute runs the CLI. The context is cancelled on SIGINT or
// SIGTERM so long-running modules shut down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
