package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/ingest"
)

var (
	pullFile   string
	pullChat   int64
	pullFormat string
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Import messages from a chat export",
	Long: `Import messages from a Telegram Desktop JSON export (result.json) or a JSONL
dump into the message store.

Only configured chats are imported. Messages older than pull_days, service
events and messages at or below the last imported id are skipped, so running
pull twice on the same export is harmless.`,
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

		src, err := ingest.NewSource(pullFormat, pullFile, pullChat)
		if err != nil {
			return err
		}

		chats := make(map[int64]bool)
		if pullChat != 0 {
			chats[pullChat] = true
		} else {
			for _, c := range cfg.Chats {
				chats[c.ChatID] = true
			}
		}

		importer := ingest.NewImporter(store, internal.NewStateManager(cfg.StatePath), cfg.PullDays)
		var results []ingest.Result
		err = internal.ShowProgress(cmd.Context(), fmt.Sprintf("Importing %s", pullFile), func() error {
			var importErr error
			results, importErr = importer.Import(cmd.Context(), src, chats)
			return importErr
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		if len(results) == 0 {
			internal.PrintWarning("No messages for the configured chats in " + pullFile)
			return nil
		}
		out := cmd.OutOrStdout()
		for _, res := range results {
			name := fmt.Sprintf("Chat %d", res.ChatID)
			if chat, ok := cfg.FindChat(res.ChatID); ok {
				name = chat.DisplayName()
			}
			fmt.Fprintf(out, "%s: %s new, %s duplicate, %s skipped %s\n",
				internal.HeaderStyle.Render(name),
				humanize.Comma(int64(res.Inserted)),
				humanize.Comma(int64(res.Duplicate)),
				humanize.Comma(int64(res.Skipped)),
				internal.MutedStyle.Render(fmt.Sprintf("(last id %d)", res.LastID)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().StringVarP(&pullFile, "file", "f", "", "Export file to import (required)")
	pullCmd.Flags().Int64Var(&pullChat, "chat", 0, "Only import this chat id")
	pullCmd.Flags().StringVar(&pullFormat, "format", "", "Source format: telegram, jsonl (default: by file extension)")
	_ = pullCmd.MarkFlagRequired("file")
}
