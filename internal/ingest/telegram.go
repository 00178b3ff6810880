package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wingbywings/telegroup/internal"
)

// telegramExport is the top level of a Telegram Desktop "result.json" chat export.
type telegramExport struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Messages []telegramMessage `json:"messages"`
}

type telegramMessage struct {
	ID               int64           `json:"id"`
	Type             string          `json:"type"`
	Date             string          `json:"date"`
	DateUnix         string          `json:"date_unixtime"`
	From             string          `json:"from"`
	FromID           string          `json:"from_id"`
	ReplyToMessageID int64           `json:"reply_to_message_id"`
	Text             json.RawMessage `json:"text"`
	Photo            string          `json:"photo"`
	File             string          `json:"file"`
	MediaType        string          `json:"media_type"`
	Action           string          `json:"action"`
}

// TelegramExport reads messages from a Telegram Desktop JSON export.
type TelegramExport struct {
	Path   string
	ChatID int64 // overrides the id found in the export when non-zero
}

// Name implements Source
func (s *TelegramExport) Name() string {
	return "telegram"
}

// Read implements Source
func (s *TelegramExport) Read(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &internal.StorageError{Path: s.Path, Op: "read", Err: err}
	}

	var export telegramExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, &internal.ParseError{Source: s.Name(), Key: s.Path, Err: err}
	}

	chatID := export.ID
	if s.ChatID != 0 {
		chatID = s.ChatID
	}
	if chatID == 0 {
		return nil, &internal.ParseError{Source: s.Name(), Key: s.Path, Err: fmt.Errorf("export has no chat id, pass one explicitly")}
	}

	records := make([]Record, 0, len(export.Messages))
	for i, raw := range export.Messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date, err := raw.timestamp()
		if err != nil {
			return nil, &internal.ParseError{Source: s.Name(), Key: fmt.Sprintf("%s#%d", s.Path, i), Err: err}
		}
		text, err := FlattenText(raw.Text)
		if err != nil {
			return nil, &internal.ParseError{Source: s.Name(), Key: fmt.Sprintf("%s#%d", s.Path, i), Err: err}
		}

		mediaType, filePath := raw.media()
		records = append(records, Record{
			Service: raw.Type != "message" || raw.Action != "",
			Message: &internal.Message{
				ChatID:    chatID,
				ID:        raw.ID,
				UserID:    parsePeerID(raw.FromID),
				Username:  strings.TrimSpace(raw.From),
				Text:      text,
				MediaType: mediaType,
				FilePath:  filePath,
				ReplyTo:   raw.ReplyToMessageID,
				Date:      date,
			},
		})
	}

	return records, nil
}

func (m *telegramMessage) timestamp() (time.Time, error) {
	if m.DateUnix != "" {
		sec, err := strconv.ParseInt(m.DateUnix, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad date_unixtime %q: %w", m.DateUnix, err)
		}
		return time.Unix(sec, 0).UTC(), nil
	}
	// Older exports only carry a local timestamp without zone.
	t, err := time.Parse("2006-01-02T15:04:05", m.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", m.Date, err)
	}
	return t.UTC(), nil
}

func (m *telegramMessage) media() (string, string) {
	switch {
	case m.Photo != "":
		return "photo", m.Photo
	case m.MediaType != "":
		return m.MediaType, m.File
	case m.File != "":
		return "document", m.File
	default:
		return "", ""
	}
}

// parsePeerID turns "user123" or "channel456" into 123 / 456.
func parsePeerID(s string) int64 {
	digits := strings.TrimLeftFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// FlattenText converts the export's text field into plain text. The field is
// either a string or an array mixing strings and entity objects with a text key.
func FlattenText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("text is neither string nor array: %w", err)
	}

	var b strings.Builder
	for _, part := range parts {
		var str string
		if err := json.Unmarshal(part, &str); err == nil {
			b.WriteString(str)
			continue
		}
		var entity struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &entity); err != nil {
			return "", fmt.Errorf("unexpected text entity: %w", err)
		}
		b.WriteString(entity.Text)
	}
	return b.String(), nil
}
