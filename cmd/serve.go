package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/digest"
	"github.com/wingbywings/telegroup/internal/notify"
	"github.com/wingbywings/telegroup/internal/report"
	"github.com/wingbywings/telegroup/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports over HTTP and run them on a schedule",
	Long: `Start an HTTP server exposing /healthz, /metrics and the generated reports
under /reports. POST /reports/run generates reports on demand.

When schedule is set (a cron expression evaluated in the configured timezone),
reports for every configured chat are generated at each tick for the day the
tick falls on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr := serveListen
		if addr == "" {
			addr = cfg.Listen
		}

		exporter, err := report.NewExporter(cfg.ReportFormat)
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

		var publisher notify.Publisher = notify.NopPublisher{}
		if cfg.SendReport {
			publisher, err = notify.NewPublisher(cfg.NATSURL, cfg.NATSSubject)
			if err != nil {
				internal.LogWarn("Reports will not be published: %v", err)
				publisher = notify.NopPublisher{}
			}
		}
		defer publisher.Close()

		runner := digest.NewRunner(cfg, digest.NewPipeline(cfg, store, summarizer), exporter, publisher)
		srv := server.NewServer(cfg, runner)

		var sched *server.Scheduler
		if cfg.Schedule != "" {
			sched, err = server.NewScheduler(cfg.Schedule, cfg.Location(), func(ctx context.Context, tick time.Time) error {
				outputs, err := runner.RunAll(ctx, cfg.Chats, tick)
				internal.LogInfo("Scheduled run wrote %d of %d report(s)", len(outputs), len(cfg.Chats))
				return err
			})
			if err != nil {
				return err
			}
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.ListenAndServe(ctx, addr)
		})
		if sched != nil {
			g.Go(func() error {
				sched.Run(ctx)
				return nil
			})
		}
		internal.PrintInfo(fmt.Sprintf("Serving %d chat(s) on %s", len(cfg.Chats), addr))
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config)")
}
