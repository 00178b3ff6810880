package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wingbywings/telegroup/internal"
)

// TopN is how many active users and reply targets a report lists.
const TopN = 5

// PreviewLength is the rune length of quoted message previews.
const PreviewLength = 50

// Report is one chat's digest for one day.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Date        string    `json:"date" yaml:"date"`
	Timezone    string    `json:"timezone" yaml:"timezone"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	ChatID   int64  `json:"chat_id" yaml:"chat_id"`
	ChatName string `json:"chat_name" yaml:"chat_name"`
	ChatLink string `json:"chat_link,omitempty" yaml:"chat_link,omitempty"`

	Stats Stats      `json:"stats" yaml:"stats"`
	AI    *AISection `json:"ai,omitempty" yaml:"ai,omitempty"`
}

// Stats is the statistical part of a report.
type Stats struct {
	Total          int           `json:"total" yaml:"total"`
	Participants   int           `json:"participants" yaml:"participants"`
	First          time.Time     `json:"first,omitempty" yaml:"first,omitempty"`
	Last           time.Time     `json:"last,omitempty" yaml:"last,omitempty"`
	TopUsers       []UserCount   `json:"top_users" yaml:"top_users"`
	Media          []MediaCount  `json:"media" yaml:"media"`
	PopularReplies []ReplyTarget `json:"popular_replies" yaml:"popular_replies"`
}

// UserCount is a sender and how many messages they posted.
type UserCount struct {
	User  string `json:"user" yaml:"user"`
	Count int    `json:"count" yaml:"count"`
}

// MediaCount is a media kind and how often it was posted.
type MediaCount struct {
	Kind  string `json:"kind" yaml:"kind"`
	Count int    `json:"count" yaml:"count"`
}

// ReplyTarget is a message that drew replies.
type ReplyTarget struct {
	MessageID int64  `json:"message_id" yaml:"message_id"`
	Replies   int    `json:"replies" yaml:"replies"`
	Known     bool   `json:"known" yaml:"known"`
	Sender    string `json:"sender,omitempty" yaml:"sender,omitempty"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	MediaType string `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Link      string `json:"link,omitempty" yaml:"link,omitempty"`
}

// AISection holds the summarized threads. Problem is set instead when the
// summarizer is not usable.
type AISection struct {
	Problem     string          `json:"problem,omitempty" yaml:"problem,omitempty"`
	Threshold   int             `json:"threshold" yaml:"threshold"`
	ThreadCount int             `json:"thread_count" yaml:"thread_count"`
	Threads     []ThreadSummary `json:"threads" yaml:"threads"`
}

// ThreadSummary is one summarized thread.
type ThreadSummary struct {
	ThreadID     int64                 `json:"thread_id" yaml:"thread_id"`
	Name         string                `json:"name" yaml:"name"`
	MessageCount int                   `json:"message_count" yaml:"message_count"`
	BatchSize    int                   `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Result       *internal.MergedResult `json:"result" yaml:"result"`
	References   []Reference           `json:"references" yaml:"references"`
}

// Reference is a message cited by a summary category.
type Reference struct {
	MessageID int64  `json:"message_id" yaml:"message_id"`
	Known     bool   `json:"known" yaml:"known"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	MediaType string `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Link      string `json:"link,omitempty" yaml:"link,omitempty"`
}

// MessageLink returns the public link of a message, or "" without a chat link.
func MessageLink(chatLink string, id int64) string {
	chatLink = strings.TrimRight(strings.TrimSpace(chatLink), "/")
	if chatLink == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", chatLink, id)
}

// Preview shortens text to n runes with an ellipsis and flattens newlines.
func Preview(text string, n int) string {
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

var linkEscaper = strings.NewReplacer("]", `\]`, ")", `\)`)

// escapeLinkText keeps a preview from closing a markdown link early.
func escapeLinkText(s string) string {
	return linkEscaper.Replace(s)
}

// SanitizeName keeps letters, digits, '-' and '_', replacing anything else with '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename builds "<date>_<name>_<chat id>.<ext>", or "<date>_<chat id>.<ext>"
// when the chat has no configured name.
func Filename(date, name string, chatID int64, ext string) string {
	if strings.TrimSpace(name) == "" {
		return fmt.Sprintf("%s_%d.%s", date, chatID, ext)
	}
	return fmt.Sprintf("%s_%s_%d.%s", date, SanitizeName(name), chatID, ext)
}
