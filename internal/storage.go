package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StoreTimeLayout is the UTC text form of message dates. Lexical order equals time order.
const StoreTimeLayout = "2006-01-02T15:04:05Z"

const messageColumns = "chat_id, message_id, user_id, username, text, media_type, file_id, reply_to, date, file_path, thread_id"

// MessageStore reads and writes chat messages in SQLite
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a new MessageStore instance
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// ChatSummary describes what is stored for one chat
type ChatSummary struct {
	ChatID       int64
	MessageCount int
	LastID       int64
	FirstDate    time.Time
	LastDate     time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertMessageSQL = `INSERT OR IGNORE INTO messages
	(chat_id, message_id, user_id, username, text, media_type, file_id, reply_to, date, file_path, thread_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert stores a message unless (chat, id) already exists. The thread id is
// always derived from the reply target. Returns whether a row was written.
func (s *MessageStore) Insert(ctx context.Context, msg *Message) (bool, error) {
	return insertMessage(ctx, s.db, msg)
}

// InsertAll stores messages in one transaction and returns how many were new.
func (s *MessageStore) InsertAll(ctx context.Context, msgs []*Message) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "insert", Path: "messages", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, msg := range msgs {
		ok, err := insertMessage(ctx, tx, msg)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "insert", Path: "messages", Err: err}
	}
	return inserted, nil
}

func insertMessage(ctx context.Context, db execer, msg *Message) (bool, error) {
	msg.ThreadID = ThreadIDFor(msg.ReplyTo)
	res, err := db.ExecContext(ctx, insertMessageSQL,
		msg.ChatID,
		msg.ID,
		nullInt(msg.UserID),
		nullString(msg.Username),
		msg.Text,
		nullString(msg.MediaType),
		nullString(msg.FileID),
		nullInt(msg.ReplyTo),
		msg.Date.UTC().Format(StoreTimeLayout),
		nullString(msg.FilePath),
		msg.ThreadID,
	)
	if err != nil {
		return false, &StorageError{Op: "insert", Path: fmt.Sprintf("messages/%d/%d", msg.ChatID, msg.ID), Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// FetchRange returns a chat's messages with start <= date < end, oldest first.
func (s *MessageStore) FetchRange(ctx context.Context, chatID int64, start, end time.Time) ([]*Message, error) {
	query := "SELECT " + messageColumns + ` FROM messages
		WHERE chat_id = ? AND date >= ? AND date < ?
		ORDER BY date ASC, message_id ASC`
	rows, err := s.db.QueryContext(ctx, query, chatID,
		start.UTC().Format(StoreTimeLayout), end.UTC().Format(StoreTimeLayout))
	if err != nil {
		return nil, &StorageError{Op: "query", Path: "messages", Err: err}
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetMessage returns one message, or nil when it is not stored.
func (s *MessageStore) GetMessage(ctx context.Context, chatID, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE chat_id = ? AND message_id = ?", chatID, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "query", Path: "messages", Err: err}
	}
	return msg, nil
}

// GetMessages looks up several messages at once. Missing ids are absent from the map.
func (s *MessageStore) GetMessages(ctx context.Context, chatID int64, ids []int64) (map[int64]*Message, error) {
	const chunk = 500
	found := make(map[int64]*Message, len(ids))
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]

		args := make([]any, 0, len(part)+1)
		args = append(args, chatID)
		for _, id := range part {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")
		query := "SELECT " + messageColumns + " FROM messages WHERE chat_id = ? AND message_id IN (" + placeholders + ")"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &StorageError{Op: "query", Path: "messages", Err: err}
		}
		msgs, err := scanMessages(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			found[m.ID] = m
		}
	}
	return found, nil
}

// LastMessageID returns the highest stored message id of a chat, 0 when empty.
func (s *MessageStore) LastMessageID(ctx context.Context, chatID int64) (int64, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(message_id) FROM messages WHERE chat_id = ?", chatID).Scan(&last)
	if err != nil {
		return 0, &StorageError{Op: "query", Path: "messages", Err: err}
	}
	return last.Int64, nil
}

// Chats summarizes every chat present in the store, ordered by chat id.
func (s *MessageStore) Chats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, COUNT(*), MAX(message_id), MIN(date), MAX(date)
		FROM messages GROUP BY chat_id ORDER BY chat_id`)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: "messages", Err: err}
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var c ChatSummary
		var first, last string
		if err := rows.Scan(&c.ChatID, &c.MessageCount, &c.LastID, &first, &last); err != nil {
			return nil, &StorageError{Op: "query", Path: "messages", Err: fmt.Errorf("scan failed: %w", err)}
		}
		c.FirstDate, _ = parseStoredDate(first)
		c.LastDate, _ = parseStoredDate(last)
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: "messages", Err: err}
	}
	return chats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg       Message
		userID    sql.NullInt64
		username  sql.NullString
		text      sql.NullString
		mediaType sql.NullString
		fileID    sql.NullString
		replyTo   sql.NullInt64
		date      string
		filePath  sql.NullString
		threadID  sql.NullInt64
	)
	if err := row.Scan(&msg.ChatID, &msg.ID, &userID, &username, &text, &mediaType, &fileID, &replyTo, &date, &filePath, &threadID); err != nil {
		return nil, err
	}

	parsed, err := parseStoredDate(date)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}

	msg.UserID = userID.Int64
	msg.Username = username.String
	msg.Text = text.String
	msg.MediaType = mediaType.String
	msg.FileID = fileID.String
	msg.ReplyTo = replyTo.Int64
	msg.Date = parsed.UTC()
	msg.FilePath = filePath.String
	msg.ThreadID = ThreadIDFor(msg.ReplyTo)
	if threadID.Valid {
		msg.ThreadID = threadID.Int64
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, &StorageError{Op: "query", Path: "messages", Err: fmt.Errorf("scan failed: %w", err)}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: "messages", Err: fmt.Errorf("rows iteration error: %w", err)}
	}
	return msgs, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
