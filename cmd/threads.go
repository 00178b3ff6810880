package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/digest"
)

var threadsDate string

var threadsCmd = &cobra.Command{
	Use:   "threads <chat-id>",
	Short: "Show how a chat-day splits into threads and batches",
	Long: `Classify one chat-day into reply threads and show which threads qualify for
summarization and how they would be batched. Nothing is sent to the model.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		chat, ok := cfg.FindChat(chatID)
		if !ok {
			chat = internal.ChatConfig{ChatID: chatID}
		}
		day, err := parseDay(threadsDate, cfg.Location())
		if err != nil {
			return err
		}

		db, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		start, end := digest.DayWindow(day, cfg.Location())
		msgs, err := store.FetchRange(cmd.Context(), chatID, start, end)
		if err != nil {
			return err
		}

		threads := internal.ClassifyThreads(msgs)
		threshold := cfg.ThresholdFor(chat)
		displayThreads(cmd.OutOrStdout(), chat, start.Format("2006-01-02"), len(msgs),
			internal.SelectThreads(threads, 1), threshold, cfg.AIMaxMessagesPerBatch)
		return nil
	},
}

func displayThreads(out io.Writer, chat internal.ChatConfig, day string, total int, threads []*internal.Thread, threshold, batchSize int) {
	fmt.Fprintln(out, internal.HeaderStyle.Render(fmt.Sprintf("%s on %s: %d messages, %d threads", chat.DisplayName(), day, total, len(threads))))
	if len(threads) == 0 {
		return
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "THREAD\tMESSAGES\tBATCHES\tSUMMARIZED\t")

	qualifying := 0
	for _, th := range threads {
		batches := internal.BatchCount(len(th.Messages), batchSize)
		status := internal.MutedStyle.Render("no")
		if len(th.Messages) >= threshold {
			status = "yes"
			qualifying++
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", th.Name(), len(th.Messages), batches, status)
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, internal.MutedStyle.Render(fmt.Sprintf("%d thread(s) with at least %d messages would be summarized, up to %d messages per batch", qualifying, threshold, batchSize)))
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.Flags().StringVarP(&threadsDate, "date", "d", "", "Day to inspect (YYYY-MM-DD, default today)")
}
