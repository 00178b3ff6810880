package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wingbywings/telegroup/internal"
)

func sampleReport() *Report {
	day := internal.TestDay
	return &Report{
		RunID:    "run-1",
		Date:     "2026-03-14",
		Timezone: "UTC",
		ChatID:   1001,
		ChatName: "Crypto Lounge",
		ChatLink: "https://t.me/cryptolounge",
		Stats: Stats{
			Total:        1234,
			Participants: 3,
			First:        day.Add(9 * time.Hour),
			Last:         day.Add(18 * time.Hour),
			TopUsers:     []UserCount{{User: "@alice", Count: 700}, {User: "@bob", Count: 534}},
			Media:        []MediaCount{{Kind: "photo", Count: 2}},
			PopularReplies: []ReplyTarget{
				{MessageID: 1, Replies: 3, Known: true, Sender: "@alice", Text: "Upgrade ships Friday", Link: "https://t.me/cryptolounge/1"},
				{MessageID: 99, Replies: 1, Link: "https://t.me/cryptolounge/99"},
			},
		},
		AI: &AISection{
			Threshold:   3,
			ThreadCount: 2,
			Threads: []ThreadSummary{
				{
					ThreadID:     1,
					Name:         "Thread 1",
					MessageCount: 5,
					BatchSize:    200,
					Result: &internal.MergedResult{
						Overall:       "Upgrade discussion",
						BatchOveralls: []string{"Upgrade discussion"},
						BatchCount:    1,
						Categories: []internal.MergedCategory{
							{Name: "Key Events", Summaries: []string{"Upgrade on Friday"}, MessageIDs: []int64{1, 3}},
							{Name: "Risk Warnings", Summaries: []string{"Validators must update"}, MessageIDs: []int64{5, 1}},
						},
					},
					References: []Reference{
						{MessageID: 1, Known: true, Text: "Upgrade ships Friday (finally)"},
						{MessageID: 3, Known: true, MediaType: "photo"},
						{MessageID: 5, Known: false},
					},
				},
				{
					ThreadID:     internal.TopLevelThreadID,
					Name:         "Top-level messages",
					MessageCount: 450,
					BatchSize:    200,
					Result: &internal.MergedResult{
						BatchCount: 3,
						AllFailed:  true,
						Categories: []internal.MergedCategory{},
						Failures: []internal.BatchFailure{
							{Index: 1, Total: 3, Reason: "timeout"},
							{Index: 2, Total: 3, Reason: "timeout"},
							{Index: 3, Total: 3, Reason: "timeout"},
						},
					},
				},
			},
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"md", "md", false},
		{"markdown", "md", false},
		{"", "md", false},
		{"json", "json", false},
		{"jsonl", "jsonl", false},
		{"yaml", "yaml", false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && exp.Extension() != tt.wantExt {
				t.Errorf("Extension() = %s, want %s", exp.Extension(), tt.wantExt)
			}
		})
	}
}

func TestMarkdownExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(sampleReport(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()

	want := []string{
		"# 2026-03-14 Crypto Lounge daily digest",
		"- Chat ID: `1001`",
		"- Total messages: 1,234",
		"- @alice: 700",
		"- photo: 2",
		"- Reply to [1](https://t.me/cryptolounge/1) (@alice): Upgrade ships Friday (3 replies)",
		"- Reply to [99](https://t.me/cryptolounge/99): 1 reply (original message not in store)",
		"- 2 threads qualified for analysis (at least 3 messages)",
		"### Thread 1 (5 messages)",
		"  - Overview: Upgrade discussion",
		"    - **Key Events**\n      Upgrade on Friday",
		"      1. [1: Upgrade ships Friday (finally\\)](https://t.me/cryptolounge/1)",
		"      2. [3: [media]](https://t.me/cryptolounge/3)",
		"      3. [5](https://t.me/cryptolounge/5)",
		"### Top-level messages (450 messages)",
		"  - Large thread split into 3 batches (up to 200 messages each)",
		"  - Batch 2/3 failed: timeout",
		"  - All batches failed",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("markdown missing %q\n%s", w, out)
		}
	}

	if strings.Index(out, "**Key Events**") > strings.Index(out, "**Risk Warnings**") {
		t.Error("categories not rendered in priority order")
	}
	if strings.Count(out, "Original references") != 1 {
		t.Errorf("expected one references block, got %d", strings.Count(out, "Original references"))
	}
}

func TestMarkdownExporter_Edges(t *testing.T) {
	tests := []struct {
		name string
		ai   *AISection
		want string
	}{
		{"config problem", &AISection{Problem: "AI summary is enabled but ai_api_key is not configured"}, "AI summary not generated: AI summary is enabled but ai_api_key is not configured."},
		{"no threads", &AISection{Threshold: 3}, "No qualifying threads (at least 3 messages)."},
		{"nil result", &AISection{Threshold: 3, ThreadCount: 1, Threads: []ThreadSummary{{Name: "Thread 7", MessageCount: 4}}}, "No summary available."},
		{"no categories", &AISection{Threshold: 3, ThreadCount: 1, Threads: []ThreadSummary{{Name: "Thread 7", MessageCount: 4, Result: &internal.MergedResult{BatchCount: 1, Overall: "quiet"}}}}, "No categories returned."},
		{"single batch failure", &AISection{Threshold: 3, ThreadCount: 1, Threads: []ThreadSummary{{Name: "Thread 7", MessageCount: 4, Result: &internal.MergedResult{BatchCount: 1, AllFailed: true, Failures: []internal.BatchFailure{{Index: 1, Total: 1, Reason: "status 500"}}}}}}, "AI summary failed: status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Date: "2026-03-14", ChatName: "Chat 5", ChatID: 5, Timezone: "UTC", AI: tt.ai}
			var buf bytes.Buffer
			if err := (&MarkdownExporter{}).Export(r, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("markdown missing %q\n%s", tt.want, buf.String())
			}
			if !strings.Contains(buf.String(), "- Time range: no messages (UTC)") {
				t.Error("empty report should note the missing time range")
			}
		})
	}
}

func TestMarkdownExporter_NoLinkReferences(t *testing.T) {
	r := sampleReport()
	r.ChatLink = ""
	r.AI.Threads[0].References = []Reference{{MessageID: 1, Known: true, Text: "hi"}, {MessageID: 2}}

	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(r, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	for _, w := range []string{"      1. 1: hi\n", "      2. 2\n"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("markdown missing %q", w)
		}
	}
}

func TestJSONExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(sampleReport(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ChatID != 1001 || len(decoded.AI.Threads) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.AI.Threads[1].Result.AllFailed {
		t.Error("all_failed lost in JSON export")
	}
}

func TestJSONLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(sampleReport(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if first["chat_id"] != float64(1001) || first["thread_id"] != float64(1) {
		t.Errorf("line 1 = %v", first)
	}

	buf.Reset()
	if err := (&JSONLExporter{}).Export(&Report{}, &buf); err != nil || buf.Len() != 0 {
		t.Errorf("report without AI section should export nothing, got %q, %v", buf.String(), err)
	}
}

func TestYAMLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleReport(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded["chat_name"] != "Crypto Lounge" {
		t.Errorf("chat_name = %v", decoded["chat_name"])
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("ab", 40)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "hello", "hello"},
		{"newlines", "line one\nline two", "line one line two"},
		{"truncated", long, long[:50] + "..."},
		{"unicode", strings.Repeat("日", 60), strings.Repeat("日", 50) + "..."},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.in, PreviewLength); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name   string
		chat   string
		chatID int64
		ext    string
		want   string
	}{
		{"named", "Crypto Lounge", 1001, "md", "2026-03-14_Crypto_Lounge_1001.md"},
		{"unnamed", "", 1001, "md", "2026-03-14_1001.md"},
		{"symbols", "a/b:c*d", -100200, "json", "2026-03-14_a_b_c_d_-100200.json"},
		{"unicode letters", "群组-x_y", 7, "yaml", "2026-03-14_群组-x_y_7.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename("2026-03-14", tt.chat, tt.chatID, tt.ext); got != tt.want {
				t.Errorf("Filename() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMessageLink(t *testing.T) {
	if got := MessageLink("https://t.me/x/", 5); got != "https://t.me/x/5" {
		t.Errorf("MessageLink() = %s", got)
	}
	if got := MessageLink("", 5); got != "" {
		t.Errorf("MessageLink() without chat link = %s", got)
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(sampleReport(), dir, "Crypto Lounge", &MarkdownExporter{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.HasSuffix(path, "2026-03-14_Crypto_Lounge_1001.md") {
		t.Errorf("path = %s", path)
	}

	_, err = Write(sampleReport(), "/dev/null/reports", "x", &MarkdownExporter{})
	var exportErr *internal.ExportError
	if !errors.As(err, &exportErr) {
		t.Errorf("Write() to an invalid dir error = %v, want ExportError", err)
	}
}
