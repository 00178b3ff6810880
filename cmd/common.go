package cmd

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/summarize"
)

func openStore(cfg *internal.Config) (*sql.DB, *internal.MessageStore, error) {
	db, err := internal.OpenDatabase(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return db, internal.NewMessageStore(db), nil
}

// parseDay returns the day named by value (YYYY-MM-DD) in loc, or today.
func parseDay(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Now().In(loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return day, nil
}

// selectChats returns the configured chats, or just chatID when it is set.
func selectChats(cfg *internal.Config, chatID int64) ([]internal.ChatConfig, error) {
	if chatID == 0 {
		return cfg.Chats, nil
	}
	chat, ok := cfg.FindChat(chatID)
	if !ok {
		return nil, fmt.Errorf("chat %d is not configured", chatID)
	}
	return []internal.ChatConfig{chat}, nil
}

// newSummarizer returns nil when AI summaries are off or not configured; the
// pipeline then reports the configuration problem instead.
func newSummarizer(cfg *internal.Config) (summarize.Summarizer, error) {
	if !cfg.EnableAISummary || cfg.AIConfigProblem() != "" {
		return nil, nil
	}
	client, err := summarize.NewClient(summarize.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	return client, nil
}
