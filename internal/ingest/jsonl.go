package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wingbywings/telegroup/internal"
)

// jsonlRecord is one line of a JSONL message dump.
type jsonlRecord struct {
	ChatID    int64  `json:"chat_id"`
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	MediaType string `json:"media_type"`
	FileID    string `json:"file_id"`
	FilePath  string `json:"file_path"`
	ReplyTo   int64  `json:"reply_to"`
	Date      string `json:"date"`
	Service   bool   `json:"service"`
}

// JSONLSource reads one message per line.
type JSONLSource struct {
	Path   string
	ChatID int64 // used for lines without chat_id, and overrides when non-zero
}

// Name implements Source
func (s *JSONLSource) Name() string {
	return "jsonl"
}

// Read implements Source
func (s *JSONLSource) Read(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &internal.StorageError{Path: s.Path, Op: "read", Err: err}
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, &internal.ParseError{Source: s.Name(), Key: fmt.Sprintf("%s:%d", s.Path, line), Err: err}
		}
		date, err := time.Parse(time.RFC3339, rec.Date)
		if err != nil {
			return nil, &internal.ParseError{Source: s.Name(), Key: fmt.Sprintf("%s:%d", s.Path, line), Err: err}
		}

		chatID := rec.ChatID
		if s.ChatID != 0 {
			chatID = s.ChatID
		}
		if chatID == 0 {
			return nil, &internal.ParseError{Source: s.Name(), Key: fmt.Sprintf("%s:%d", s.Path, line), Err: fmt.Errorf("missing chat_id")}
		}

		records = append(records, Record{
			Service: rec.Service,
			Message: &internal.Message{
				ChatID:    chatID,
				ID:        rec.ID,
				UserID:    rec.UserID,
				Username:  strings.TrimPrefix(rec.Username, "@"),
				Text:      rec.Text,
				MediaType: rec.MediaType,
				FileID:    rec.FileID,
				FilePath:  rec.FilePath,
				ReplyTo:   rec.ReplyTo,
				Date:      date.UTC(),
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &internal.StorageError{Path: s.Path, Op: "read", Err: err}
	}

	return records, nil
}
