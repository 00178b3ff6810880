package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/notify"
	"github.com/wingbywings/telegroup/internal/server"
)

var (
	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	infoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("62")).
		Bold(true).
		Underline(true)
)

// natsPingTimeout bounds the broker reachability check.
const natsPingTimeout = 3 * time.Second

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, message store and integrations",
	Long: `Check the health of telegroup by verifying:
  • Configuration loading and validation
  • Message store access and contents
  • AI summary configuration
  • NATS broker reachability (when send_report is enabled)
  • Schedule expression (when schedule is set)

Run with --verbose for per-chat details.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Telegroup Health Check"))
		fmt.Fprintln(out)

		// Step 1: configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Configuration is not usable:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Configuration loaded (%d chat(s), timezone %s)", len(cfg.Chats), cfg.Timezone)))
		if verbose {
			fmt.Fprintf(out, "   Config: %s\n", configPath)
			fmt.Fprintf(out, "   Database: %s\n", cfg.DBPath)
			fmt.Fprintf(out, "   Reports: %s (%s)\n", cfg.ReportDir, cfg.ReportFormat)
		}
		fmt.Fprintln(out)

		// Step 2: message store
		fmt.Fprintln(out, infoStyle.Render("Step 2: Opening message store..."))
		db, err := internal.OpenDatabaseReadOnly(cfg.DBPath)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to open message store:"), err)
			fmt.Fprintln(out, "   Run 'telegroup pull --file <export>' to create it")
			return fmt.Errorf("health check failed: %w", err)
		}
		defer db.Close()
		store := internal.NewMessageStore(db)

		stored, err := store.Chats(cmd.Context())
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to query message store:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		total := 0
		for _, s := range stored {
			total += s.MessageCount
		}
		if total > 0 {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %s message(s) in %d chat(s)", humanize.Comma(int64(total)), len(stored))))
		} else {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Message store is empty"))
			fmt.Fprintln(out, "   Run 'telegroup pull --file <export>' to import messages")
		}
		if verbose {
			for _, s := range stored {
				fmt.Fprintf(out, "   [%d] %s messages, last id %d, last at %s\n",
					s.ChatID, humanize.Comma(int64(s.MessageCount)), s.LastID, s.LastDate.Format(time.RFC3339))
			}
		}
		fmt.Fprintln(out)

		// Step 3: AI summaries
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking AI summary configuration..."))
		aiProblem := ""
		switch {
		case !cfg.EnableAISummary:
			fmt.Fprintln(out, warningStyle.Render("⚠️  AI summaries are disabled"))
		case cfg.AIConfigProblem() != "":
			aiProblem = cfg.AIConfigProblem()
			fmt.Fprintln(out, errorStyle.Render("❌ "+aiProblem))
		default:
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ AI summaries use %s", cfg.AIModel)))
			if verbose {
				fmt.Fprintf(out, "   Endpoint: %s\n", cfg.AIAPIBase)
				fmt.Fprintf(out, "   Batch size: %d, concurrency: %d\n", cfg.AIMaxMessagesPerBatch, cfg.AIConcurrency)
			}
		}
		fmt.Fprintln(out)

		// Step 4: NATS
		fmt.Fprintln(out, infoStyle.Render("Step 4: Checking report notifications..."))
		natsProblem := ""
		switch {
		case !cfg.SendReport:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Report notifications are disabled"))
		case cfg.NATSURL == "":
			natsProblem = "send_report is enabled but nats_url is not configured"
			fmt.Fprintln(out, errorStyle.Render("❌ "+natsProblem))
		default:
			if err := notify.Ping(cfg.NATSURL, natsPingTimeout); err != nil {
				natsProblem = err.Error()
				fmt.Fprintln(out, errorStyle.Render("❌ NATS broker unreachable:"), err)
			} else {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ NATS broker reachable, subject %s", cfg.NATSSubject)))
			}
		}
		fmt.Fprintln(out)

		// Step 5: schedule
		fmt.Fprintln(out, infoStyle.Render("Step 5: Checking schedule..."))
		scheduleProblem := ""
		if cfg.Schedule == "" {
			fmt.Fprintln(out, warningStyle.Render("⚠️  No schedule configured; 'serve' only runs reports on request"))
		} else if sched, err := server.NewScheduler(cfg.Schedule, cfg.Location(), nil); err != nil {
			scheduleProblem = err.Error()
			fmt.Fprintln(out, errorStyle.Render("❌ "+scheduleProblem))
		} else if next, err := sched.Next(time.Now()); err != nil {
			scheduleProblem = err.Error()
			fmt.Fprintln(out, errorStyle.Render("❌ Schedule never fires:"), err)
		} else {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Next scheduled run at %s", next.Format(time.RFC3339))))
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		var problems []string
		for _, p := range []string{aiProblem, natsProblem, scheduleProblem} {
			if p != "" {
				problems = append(problems, p)
			}
		}
		if len(problems) > 0 {
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			for _, p := range problems {
				fmt.Fprintf(out, "   • %s\n", p)
			}
			return fmt.Errorf("health check failed: %d problem(s)", len(problems))
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Messages: %s stored", humanize.Comma(int64(total)))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
