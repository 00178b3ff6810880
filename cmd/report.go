package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/digest"
	"github.com/wingbywings/telegroup/internal/notify"
	"github.com/wingbywings/telegroup/internal/report"
)

var (
	reportDate   string
	reportChat   int64
	reportFormat string
	reportStdout bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate daily digests",
	Long: `Generate the digest of one day for every configured chat (or one chat with
--chat). Reports are written to report_dir as md, json, jsonl or yaml, and
announced on NATS when send_report is enabled.

A chat whose report fails is logged and the remaining chats still run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		day, err := parseDay(reportDate, cfg.Location())
		if err != nil {
			return err
		}
		chats, err := selectChats(cfg, reportChat)
		if err != nil {
			return err
		}

		format := reportFormat
		if format == "" {
			format = cfg.ReportFormat
		}
		exporter, err := report.NewExporter(format)
		if err != nil {
			return err
		}

		db, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		summarizer, err := newSummarizer(cfg)
		if err != nil {
			return err
		}
		pipeline := digest.NewPipeline(cfg, store, summarizer)

		if reportStdout {
			for _, chat := range chats {
				rep, err := pipeline.Run(cmd.Context(), chat, day)
				if err != nil {
					return err
				}
				if err := exporter.Export(rep, cmd.OutOrStdout()); err != nil {
					return &internal.ExportError{Format: format, Path: "stdout", Err: err}
				}
			}
			return nil
		}

		var publisher notify.Publisher = notify.NopPublisher{}
		if cfg.SendReport {
			publisher, err = notify.NewPublisher(cfg.NATSURL, cfg.NATSSubject)
			if err != nil {
				internal.LogWarn("Reports will not be published: %v", err)
				publisher = notify.NopPublisher{}
			}
		}
		defer publisher.Close()

		runner := digest.NewRunner(cfg, pipeline, exporter, publisher)
		var outputs []*digest.Output
		runErr := internal.ShowProgress(cmd.Context(), fmt.Sprintf("Generating %d report(s)", len(chats)), func() error {
			var err error
			outputs, err = runner.RunAll(cmd.Context(), chats, day)
			return err
		})

		for _, out := range outputs {
			internal.PrintSuccess(fmt.Sprintf("%s: %s", out.Chat.DisplayName(), out.Path))
		}
		if runErr != nil {
			return fmt.Errorf("%d of %d report(s) failed: %w", len(chats)-len(outputs), len(chats), runErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportDate, "date", "d", "", "Day to report (YYYY-MM-DD, default today in the configured timezone)")
	reportCmd.Flags().Int64Var(&reportChat, "chat", 0, "Only report this chat id")
	reportCmd.Flags().StringVar(&reportFormat, "format", "", "Report format: md, json, jsonl, yaml (default from config)")
	reportCmd.Flags().BoolVar(&reportStdout, "stdout", false, "Write reports to stdout instead of report_dir")
}
