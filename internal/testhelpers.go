package internal

import (
	"fmt"
	"time"
)

// TestDay is the reference day used by fixtures.
var TestDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

// CreateTestMessage creates a message in chat 1001 posted minutes after TestDay.
func CreateTestMessage(id, replyTo int64, username, text string, minutes int) *Message {
	return &Message{
		ChatID:   1001,
		ID:       id,
		UserID:   100 + id%5,
		Username: username,
		Text:     text,
		ReplyTo:  replyTo,
		Date:     TestDay.Add(time.Duration(minutes) * time.Minute),
		ThreadID: ThreadIDFor(replyTo),
	}
}

// CreateTestThread creates n consecutive replies to root, ids starting at firstID.
func CreateTestThread(root, firstID int64, n int) []*Message {
	msgs := make([]*Message, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		msgs[i] = CreateTestMessage(id, root, fmt.Sprintf("user%d", i%3), fmt.Sprintf("reply %d", id), int(id))
	}
	return msgs
}
