package testutil

import (
	"testing"
)

// TelegramExportJSON is a small Telegram Desktop export of chat 1001 on 2026-03-14 UTC.
// It contains a service message, a photo, a rich-text message and a reply chain on message 1.
const TelegramExportJSON = `{
  "name": "Crypto Lounge",
  "type": "public_supergroup",
  "id": 1001,
  "messages": [
    {"id": 1, "type": "message", "date": "2026-03-14T09:00:00", "date_unixtime": "1773478800",
     "from": "alice", "from_id": "user111", "text": "Mainnet upgrade ships tonight"},
    {"id": 2, "type": "service", "date": "2026-03-14T09:01:00", "date_unixtime": "1773478860",
     "actor": "bob", "actor_id": "user222", "action": "pin_message", "text": ""},
    {"id": 3, "type": "message", "date": "2026-03-14T09:05:00", "date_unixtime": "1773479100",
     "from": "bob", "from_id": "user222", "reply_to_message_id": 1,
     "text": ["Changelog: ", {"type": "link", "text": "https://example.org/notes"}, " looks solid"]},
    {"id": 4, "type": "message", "date": "2026-03-14T09:07:00", "date_unixtime": "1773479220",
     "from": "carol", "from_id": "user333", "reply_to_message_id": 1,
     "photo": "photos/photo_4.jpg", "text": ""},
    {"id": 5, "type": "message", "date": "2026-03-14T09:10:00", "date_unixtime": "1773479400",
     "from": "alice", "from_id": "user111", "reply_to_message_id": 1,
     "text": [{"type": "bold", "text": "Risk:"}, " validators must update"]},
    {"id": 6, "type": "message", "date": "2026-03-14T09:12:00", "date_unixtime": "1773479520",
     "from": "dave", "from_id": "user444", "reply_to_message_id": 99,
     "media_type": "voice_message", "file": "voice/6.ogg", "text": ""},
    {"id": 7, "type": "message", "date": "2026-03-14T09:20:00", "date_unixtime": "1773480000",
     "from": "bob", "from_id": "user222", "text": "gm"}
  ]
}`

// MessagesJSONL holds the same kind of data as line-delimited records.
const MessagesJSONL = `{"chat_id":2002,"id":10,"user_id":5,"username":"erin","text":"first","date":"2026-03-14T08:00:00Z"}
{"chat_id":2002,"id":11,"user_id":6,"text":"second","reply_to":10,"date":"2026-03-14T08:01:00Z"}

{"chat_id":2002,"id":12,"user_id":5,"username":"erin","media_type":"photo","date":"2026-03-14T08:02:00Z"}
`

// ConfigYAML is a minimal configuration with one chat.
const ConfigYAML = `
db_path: data/messages.db
report_dir: reports
timezone: UTC
enable_ai_summary: true
ai_api_base: http://localhost:9999/v1
ai_api_key: test-key
ai_max_messages_per_batch: 2
chats:
  - chat_id: 1001
    name: Crypto Lounge
    chat_link: https://t.me/cryptolounge
    chat_type: crypto
    min_thread_messages: 2
`

// CreateTelegramExport writes TelegramExportJSON to dir/result.json
func CreateTelegramExport(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "result.json", []byte(TelegramExportJSON))
}

// CreateConfigFixture writes ConfigYAML to dir/config.yaml
func CreateConfigFixture(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "config.yaml", []byte(ConfigYAML))
}
