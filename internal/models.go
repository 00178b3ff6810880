package internal

import (
	"fmt"
	"time"
)

// TopLevelThreadID is the thread id of messages that do not reply to anything.
const TopLevelThreadID int64 = -1

// Message is one stored chat message.
type Message struct {
	ChatID    int64     `json:"chat_id" yaml:"chat_id"`
	ID        int64     `json:"id" yaml:"id"`
	UserID    int64     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Username  string    `json:"username,omitempty" yaml:"username,omitempty"`
	Text      string    `json:"text" yaml:"text"`
	MediaType string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	FileID    string    `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	FilePath  string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	ReplyTo   int64     `json:"reply_to,omitempty" yaml:"reply_to,omitempty"` // 0 when not a reply
	Date      time.Time `json:"date" yaml:"date"`
	ThreadID  int64     `json:"thread_id" yaml:"thread_id"`
}

// IsReply reports whether the message replies to another message.
func (m *Message) IsReply() bool {
	return m.ReplyTo > 0
}

// Sender returns the display key used for statistics and payloads.
func (m *Message) Sender() string {
	return FormatUser(m.Username, m.UserID)
}

// FormatUser renders a sender as @username, user_<id> or "unknown".
func FormatUser(username string, userID int64) string {
	if username != "" {
		return "@" + username
	}
	if userID != 0 {
		return fmt.Sprintf("user_%d", userID)
	}
	return "unknown"
}

// Thread is the time-ordered set of messages sharing a thread id within a window.
type Thread struct {
	ID       int64
	Messages []*Message
}

// Name returns the human label of the thread.
func (t *Thread) Name() string {
	return ThreadName(t.ID)
}

// ThreadName labels a thread id for reports.
func ThreadName(id int64) string {
	if id == TopLevelThreadID {
		return "Top-level messages"
	}
	return fmt.Sprintf("Thread %d", id)
}

// Batch is a contiguous slice of a thread sent in one summarization call.
type Batch struct {
	Index    int // 1-based
	Total    int
	Messages []*Message
}

// Category is one topical group returned by the summarizer.
type Category struct {
	Name       string  `json:"name" yaml:"name" jsonschema:"required"`
	Summary    string  `json:"summary" yaml:"summary" jsonschema:"required"`
	MessageIDs []int64 `json:"messages" yaml:"messages" jsonschema:"required"`
}

// StructuredResult is the decoded summary of one batch.
type StructuredResult struct {
	Overall    string     `json:"overall" yaml:"overall" jsonschema:"required"`
	Categories []Category `json:"categories" yaml:"categories" jsonschema:"required"`
}

// BatchOutcome is the result of summarizing one batch: either Result or Err is set.
type BatchOutcome struct {
	Index  int
	Total  int
	Result *StructuredResult
	Err    error
}

// BatchFailure records a batch whose summary could not be obtained.
type BatchFailure struct {
	Index  int    `json:"index" yaml:"index"`
	Total  int    `json:"total" yaml:"total"`
	Reason string `json:"reason" yaml:"reason"`
}

// MergedCategory is a category combined across all batches of a thread.
type MergedCategory struct {
	Name       string   `json:"name" yaml:"name"`
	Summaries  []string `json:"summaries" yaml:"summaries"`
	MessageIDs []int64  `json:"messages" yaml:"messages"`
}

// MergedResult is the single summary of a thread.
type MergedResult struct {
	Overall       string           `json:"overall,omitempty" yaml:"overall,omitempty"`
	BatchOveralls []string         `json:"batch_overalls,omitempty" yaml:"batch_overalls,omitempty"`
	Categories    []MergedCategory `json:"categories" yaml:"categories"`
	Failures      []BatchFailure   `json:"failures,omitempty" yaml:"failures,omitempty"`
	BatchCount    int              `json:"batch_count" yaml:"batch_count"`
	AllFailed     bool             `json:"all_failed" yaml:"all_failed"`
}
