package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
)

// Record is one message read from a source.
type Record struct {
	Message *internal.Message
	Service bool // joins, pins and other non-content events
}

// Source yields messages from an external dump.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]Record, error)
}

// NewSource picks a reader by format name, or by file extension when format is empty.
func NewSource(format, path string, chatID int64) (Source, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			format = "jsonl"
		default:
			format = "telegram"
		}
	}
	switch format {
	case "telegram", "tdesktop":
		return &TelegramExport{Path: path, ChatID: chatID}, nil
	case "jsonl":
		return &JSONLSource{Path: path, ChatID: chatID}, nil
	default:
		return nil, fmt.Errorf("unsupported source format: %s (supported: telegram, jsonl)", format)
	}
}

// Result summarizes an import for one chat.
type Result struct {
	ChatID    int64
	Read      int
	Inserted  int
	Duplicate int
	Skipped   int // service events, too old, or at or below the last seen id
	LastID    int64
}

// Importer writes source records into the store, honoring the pull window
// and the per-chat last seen id.
type Importer struct {
	store    *internal.MessageStore
	state    *internal.StateManager
	pullDays int
	now      func() time.Time
}

// NewImporter creates an importer. pullDays bounds how far back messages are accepted.
func NewImporter(store *internal.MessageStore, state *internal.StateManager, pullDays int) *Importer {
	return &Importer{store: store, state: state, pullDays: pullDays, now: time.Now}
}

// Import reads src and stores its messages. When chats is non-empty only
// those chat ids are imported.
func (im *Importer) Import(ctx context.Context, src Source, chats map[int64]bool) ([]Result, error) {
	records, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := im.now().Add(-time.Duration(im.pullDays) * 24 * time.Hour)
	byChat := make(map[int64][]*internal.Message)
	results := make(map[int64]*Result)
	lastIDs := make(map[int64]int64)

	for _, rec := range records {
		msg := rec.Message
		if len(chats) > 0 && !chats[msg.ChatID] {
			continue
		}

		res, ok := results[msg.ChatID]
		if !ok {
			res = &Result{ChatID: msg.ChatID}
			results[msg.ChatID] = res
			last, err := im.state.LastID(msg.ChatID)
			if err != nil {
				return nil, err
			}
			if last == 0 {
				// No pull state yet: resume after what the store already holds.
				if last, err = im.store.LastMessageID(ctx, msg.ChatID); err != nil {
					return nil, err
				}
			}
			lastIDs[msg.ChatID] = last
			res.LastID = last
		}
		res.Read++

		switch {
		case rec.Service:
			res.Skipped++
		case msg.ID <= lastIDs[msg.ChatID]:
			res.Skipped++
		case im.pullDays > 0 && msg.Date.Before(cutoff):
			res.Skipped++
		default:
			byChat[msg.ChatID] = append(byChat[msg.ChatID], msg)
		}
		if msg.ID > res.LastID {
			res.LastID = msg.ID
		}
	}

	ids := make([]int64, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Result, 0, len(ids))
	for _, chatID := range ids {
		res := results[chatID]
		msgs := byChat[chatID]

		inserted, err := im.store.InsertAll(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("import chat %d: %w", chatID, err)
		}
		res.Inserted = inserted
		res.Duplicate = len(msgs) - inserted

		if err := im.state.Record(chatID, res.LastID, inserted); err != nil {
			return nil, fmt.Errorf("record state for chat %d: %w", chatID, err)
		}

		metrics.MessagesIngested.WithLabelValues("inserted").Add(float64(res.Inserted))
		metrics.MessagesIngested.WithLabelValues("duplicate").Add(float64(res.Duplicate))
		metrics.MessagesIngested.WithLabelValues("skipped").Add(float64(res.Skipped))
		internal.LogInfo("Chat %d: read %d, inserted %d, duplicate %d, skipped %d, last id %d",
			chatID, res.Read, res.Inserted, res.Duplicate, res.Skipped, res.LastID)

		out = append(out, *res)
	}

	return out, nil
}
