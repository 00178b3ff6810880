package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
)

// chatRow joins configuration, store contents and pull state for one chat.
type chatRow struct {
	ChatID     int64
	Name       string
	Configured bool
	Messages   int
	LastID     int64
	LastDate   time.Time
	LastPull   time.Time
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats with stored message counts",
	Long:  `List configured chats together with what the store holds for each, plus any stored chats that are no longer configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stored, err := store.Chats(cmd.Context())
		if err != nil {
			return err
		}
		state, err := internal.NewStateManager(cfg.StatePath).Load()
		if err != nil {
			internal.LogWarn("Failed to read pull state: %v", err)
			state = &internal.StateFile{}
		}

		displayChats(cmd.OutOrStdout(), buildChatRows(cfg, stored, state), time.Now())
		return nil
	},
}

func buildChatRows(cfg *internal.Config, stored []internal.ChatSummary, state *internal.StateFile) []chatRow {
	var rows []chatRow
	index := make(map[int64]int)
	for _, c := range cfg.Chats {
		index[c.ChatID] = len(rows)
		rows = append(rows, chatRow{ChatID: c.ChatID, Name: c.DisplayName(), Configured: true})
	}
	for _, s := range stored {
		pos, ok := index[s.ChatID]
		if !ok {
			pos = len(rows)
			index[s.ChatID] = pos
			rows = append(rows, chatRow{ChatID: s.ChatID, Name: fmt.Sprintf("Chat %d", s.ChatID)})
		}
		rows[pos].Messages = s.MessageCount
		rows[pos].LastID = s.LastID
		rows[pos].LastDate = s.LastDate
	}
	for _, cs := range state.Chats {
		if pos, ok := index[cs.ChatID]; ok {
			rows[pos].LastPull = cs.LastPullAt
		}
	}
	return rows
}

func displayChats(out io.Writer, rows []chatRow, now time.Time) {
	if len(rows) == 0 {
		fmt.Fprintln(out, internal.HeaderStyle.Render("No chats configured or stored"))
		return
	}
	fmt.Fprintln(out, internal.HeaderStyle.Render(fmt.Sprintf("%d chat(s)", len(rows))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAT ID\tNAME\tMESSAGES\tLAST ID\tLAST MESSAGE\tLAST PULL\t")
	for _, r := range rows {
		name := r.Name
		if !r.Configured {
			name = internal.MutedStyle.Render(name + " (not configured)")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t\n",
			r.ChatID, name, humanize.Comma(int64(r.Messages)), r.LastID,
			relative(r.LastDate, now), relative(r.LastPull, now))
	}
	_ = w.Flush()
}

func relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func init() {
	rootCmd.AddCommand(chatsCmd)
}
