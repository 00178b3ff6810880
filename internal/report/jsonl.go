package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLExporter writes one line per summarized thread, each carrying the
// chat and date so lines can be concatenated across reports.
type JSONLExporter struct{}

type threadLine struct {
	RunID    string `json:"run_id"`
	Date     string `json:"date"`
	ChatID   int64  `json:"chat_id"`
	ChatName string `json:"chat_name"`
	ThreadSummary
}

// Export writes the threads of r as JSON lines
func (e *JSONLExporter) Export(r *Report, w io.Writer) error {
	if r.AI == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, th := range r.AI.Threads {
		line := threadLine{
			RunID:         r.RunID,
			Date:          r.Date,
			ChatID:        r.ChatID,
			ChatName:      r.ChatName,
			ThreadSummary: th,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode thread %d: %w", th.ThreadID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
