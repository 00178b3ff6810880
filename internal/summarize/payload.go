package summarize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wingbywings/telegroup/internal"
)

// Request is everything needed to summarize one batch of a thread.
type Request struct {
	ChatID        int64
	ChatName      string
	ChatType      string // crypto, tech, news or empty
	Date          string // YYYY-MM-DD in the report time zone
	Timezone      string
	ThreadID      int64
	Batch         internal.Batch
	ThreadSize    int
	Messages      []Message
	MaxCategories int
	Style         string
}

// BatchLabel returns the batch position note, empty for single-batch threads.
func (r *Request) BatchLabel() string {
	if r.Batch.Total <= 1 {
		return ""
	}
	return fmt.Sprintf("batch %d/%d, %d messages in total", r.Batch.Index, r.Batch.Total, r.ThreadSize)
}

// Message is the wire form of one chat message in the model payload.
type Message struct {
	ID             int64          `json:"id"`
	User           string         `json:"user"`
	TS             string         `json:"ts"`
	Text           string         `json:"text"`
	MediaType      *string        `json:"media_type"`
	ReplyTo        *int64         `json:"reply_to"`
	RepliedMessage *RepliedContext `json:"replied_message,omitempty"`
}

// RepliedContext describes the message a reply points at.
type RepliedContext struct {
	ID        int64   `json:"id"`
	User      string  `json:"user"`
	Text      string  `json:"text"`
	MediaType *string `json:"media_type"`
	TS        string  `json:"ts"`
}

// payload is the JSON document embedded in the user prompt.
type payload struct {
	ChatID              int64     `json:"chat_id"`
	ChatName            string    `json:"chat_name,omitempty"`
	ChatType            string    `json:"chat_type,omitempty"`
	Date                string    `json:"date"`
	Timezone            string    `json:"timezone"`
	ThreadID            int64     `json:"thread_id"`
	Messages            []Message `json:"messages"`
	BatchInfo           string    `json:"batch_info,omitempty"`
	MaxCategories       int       `json:"max_categories,omitempty"`
	Style               string    `json:"style,omitempty"`
	PreferredCategories []string  `json:"preferred_categories,omitempty"`
}

// BuildMessages converts stored messages into payload messages. Replies whose
// target is known carry it as context. Replies whose target is not stored are
// left out; the number left out is returned.
func BuildMessages(msgs []*internal.Message, replied map[int64]*internal.Message, loc *time.Location) ([]Message, int) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Message, 0, len(msgs))
	dropped := 0

	for _, m := range msgs {
		pm := Message{
			ID:        m.ID,
			User:      m.Sender(),
			TS:        m.Date.In(loc).Format(time.RFC3339),
			Text:      m.Text,
			MediaType: optString(m.MediaType),
		}
		if m.IsReply() {
			target, ok := replied[m.ReplyTo]
			if !ok || target == nil {
				dropped++
				continue
			}
			replyTo := m.ReplyTo
			pm.ReplyTo = &replyTo
			pm.RepliedMessage = &RepliedContext{
				ID:        target.ID,
				User:      target.Sender(),
				Text:      target.Text,
				MediaType: optString(target.MediaType),
				TS:        target.Date.In(loc).Format(time.RFC3339),
			}
		}
		out = append(out, pm)
	}

	return out, dropped
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MarshalPayload renders the request as the JSON document sent to the model.
func MarshalPayload(req *Request, preferred []string) ([]byte, error) {
	p := payload{
		ChatID:              req.ChatID,
		ChatName:            req.ChatName,
		ChatType:            req.ChatType,
		Date:                req.Date,
		Timezone:            req.Timezone,
		ThreadID:            req.ThreadID,
		Messages:            req.Messages,
		BatchInfo:           req.BatchLabel(),
		MaxCategories:       req.MaxCategories,
		Style:               req.Style,
		PreferredCategories: preferred,
	}
	if p.Messages == nil {
		p.Messages = []Message{}
	}
	return json.Marshal(p)
}
