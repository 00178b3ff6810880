package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// legacyMessagesTable is the layout used before file paths and thread ids were stored.
const legacyMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	chat_id    INTEGER NOT NULL,
	message_id INTEGER NOT NULL,
	user_id    INTEGER,
	username   TEXT,
	text       TEXT,
	media_type TEXT,
	file_id    TEXT,
	reply_to   INTEGER,
	date       TEXT NOT NULL,
	PRIMARY KEY (chat_id, message_id)
)`

// LegacyRow is one row of a legacy messages table
type LegacyRow struct {
	ChatID    int64
	MessageID int64
	Username  string
	Text      string
	ReplyTo   int64 // 0 stores NULL
	Date      string
}

// CreateInMemoryDB creates an empty in-memory SQLite database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateLegacyDB creates an in-memory database with the old messages layout and rows
func CreateLegacyDB(t *testing.T, rows []LegacyRow) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	if _, err := db.Exec(legacyMessagesTable); err != nil {
		t.Fatalf("Failed to create legacy messages table: %v", err)
	}

	stmt, err := db.Prepare("INSERT INTO messages (chat_id, message_id, username, text, reply_to, date) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var replyTo any
		if r.ReplyTo != 0 {
			replyTo = r.ReplyTo
		}
		if _, err := stmt.Exec(r.ChatID, r.MessageID, r.Username, r.Text, replyTo, r.Date); err != nil {
			t.Fatalf("Failed to insert legacy row %d: %v", r.MessageID, err)
		}
	}

	return db
}
