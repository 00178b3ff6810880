package internal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createMessagesTable = `
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

var messageIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_messages_reply_to ON messages(chat_id, reply_to)",
	"CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages(chat_id, thread_id)",
	"CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(chat_id, date)",
}

// OpenDatabase opens (creating if needed) the message database and migrates its schema
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, &StorageError{Path: path, Op: "open", Err: err}
		}
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}

	if err := EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "migrate", Err: err}
	}

	return db, nil
}

// OpenDatabaseReadOnly opens an existing database without migrating it
func OpenDatabaseReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}
	return db, nil
}

// EnsureSchema creates the messages table and brings older layouts up to date.
// Databases created before thread ids existed get the column added and backfilled.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMessagesTable); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	columns, err := tableColumns(ctx, db, "messages")
	if err != nil {
		return err
	}

	if !columns["file_path"] {
		if _, err := db.ExecContext(ctx, "ALTER TABLE messages ADD COLUMN file_path TEXT"); err != nil {
			return fmt.Errorf("add file_path column: %w", err)
		}
	}

	if !columns["thread_id"] {
		if _, err := db.ExecContext(ctx, "ALTER TABLE messages ADD COLUMN thread_id INTEGER"); err != nil {
			return fmt.Errorf("add thread_id column: %w", err)
		}
		res, err := db.ExecContext(ctx,
			"UPDATE messages SET thread_id = CASE WHEN reply_to IS NOT NULL AND reply_to > 0 THEN reply_to ELSE ? END",
			TopLevelThreadID)
		if err != nil {
			return fmt.Errorf("backfill thread_id: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			LogInfo("Backfilled thread_id for %d messages", n)
		}
	} else {
		res, err := db.ExecContext(ctx,
			`UPDATE messages SET thread_id = CASE WHEN reply_to IS NOT NULL AND reply_to > 0 THEN reply_to ELSE ? END
			 WHERE thread_id IS NULL OR ((reply_to IS NULL OR reply_to <= 0) AND thread_id != ?)`,
			TopLevelThreadID, TopLevelThreadID)
		if err != nil {
			return fmt.Errorf("repair thread_id: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			LogWarn("Repaired thread_id for %d messages", n)
		}
	}

	if err := normalizeDates(ctx, db); err != nil {
		return err
	}

	for _, stmt := range messageIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// canonicalDateGlob matches dates already in StoreTimeLayout.
const canonicalDateGlob = "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]T[0-9][0-9]:[0-9][0-9]:[0-9][0-9]Z"

// legacyDateLayouts are the forms older writers used. Values without an offset are UTC.
var legacyDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseStoredDate reads a date column in the canonical or any legacy form.
func parseStoredDate(s string) (time.Time, error) {
	if t, err := time.Parse(StoreTimeLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// normalizeDates rewrites dates stored with an offset or fraction into
// StoreTimeLayout, so range queries can compare them as text.
func normalizeDates(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		"SELECT chat_id, message_id, date FROM messages WHERE date NOT GLOB ?", canonicalDateGlob)
	if err != nil {
		return fmt.Errorf("query legacy dates: %w", err)
	}

	type dateFix struct {
		chatID, messageID int64
		date              string
	}
	var fixes []dateFix
	for rows.Next() {
		var (
			f    dateFix
			date string
		)
		if err := rows.Scan(&f.chatID, &f.messageID, &date); err != nil {
			rows.Close()
			return fmt.Errorf("scan legacy date: %w", err)
		}
		parsed, err := parseStoredDate(date)
		if err != nil {
			LogWarn("Message %d in chat %d keeps unparseable date %q", f.messageID, f.chatID, date)
			continue
		}
		f.date = parsed.Format(StoreTimeLayout)
		fixes = append(fixes, f)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	if len(fixes) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("normalize dates: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, f := range fixes {
		if _, err := tx.ExecContext(ctx, "UPDATE messages SET date = ? WHERE chat_id = ? AND message_id = ?",
			f.date, f.chatID, f.messageID); err != nil {
			return fmt.Errorf("normalize date of message %d: %w", f.messageID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("normalize dates: %w", err)
	}
	LogInfo("Normalized dates of %d messages to UTC", len(fixes))
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return columns, nil
}
