package digest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/notify"
	"github.com/wingbywings/telegroup/internal/report"
	"github.com/wingbywings/telegroup/internal/summarize"
)

// fakeSummarizer answers every batch with one "Key Events" category citing
// the batch's first message and message 1. Batches listed in fail get a
// transport error instead.
type fakeSummarizer struct {
	mu    sync.Mutex
	calls []*summarize.Request
	fail  map[string]bool
}

func batchKey(threadID int64, index int) string {
	return fmt.Sprintf("%d/%d", threadID, index)
}

func (f *fakeSummarizer) Summarize(_ context.Context, req *summarize.Request) (*internal.StructuredResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.fail[batchKey(req.ThreadID, req.Batch.Index)] {
		return nil, &internal.TransportError{Op: "chat_completion", Timeout: true, Err: context.DeadlineExceeded}
	}
	return &internal.StructuredResult{
		Overall: fmt.Sprintf("summary of batch %d", req.Batch.Index),
		Categories: []internal.Category{
			{Name: "Key Events", Summary: "events", MessageIDs: []int64{req.Messages[0].ID, 1}},
		},
	}, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig(t *testing.T) *internal.Config {
	t.Helper()
	cfg, err := internal.ParseConfig([]byte(`
chats:
  - chat_id: 1001
    name: Crypto Lounge
    chat_link: https://t.me/cryptolounge/
    chat_type: crypto
enable_ai_summary: true
ai_api_base: http://localhost:9999/v1
ai_api_key: test-key
ai_max_messages_per_batch: 2
ai_concurrency: 3
min_thread_messages: 3
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	cfg.ReportDir = t.TempDir()
	return cfg
}

// seedStore stores one day of chat 1001:
//   - message 1 is top-level and has five replies (2-6)
//   - messages 7 and 8 are top-level
//   - messages 9-11 reply to message 50, which is not stored
//   - message 12 replies to 7
//   - message 20 belongs to the previous day
func seedStore(t *testing.T) *internal.MessageStore {
	t.Helper()
	db, err := internal.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := internal.NewMessageStore(db)

	msgs := []*internal.Message{internal.CreateTestMessage(1, 0, "alice", "Upgrade ships Friday", 60)}
	msgs = append(msgs, internal.CreateTestThread(1, 2, 5)...)
	msgs = append(msgs,
		internal.CreateTestMessage(7, 0, "bob", "gm", 120),
		internal.CreateTestMessage(8, 0, "carol", "", 121),
		internal.CreateTestMessage(9, 50, "dave", "old news", 130),
		internal.CreateTestMessage(10, 50, "dave", "still old", 131),
		internal.CreateTestMessage(11, 50, "erin", "agreed", 132),
		internal.CreateTestMessage(12, 7, "alice", "gm gm", 140),
		internal.CreateTestMessage(20, 0, "alice", "yesterday", -60),
	)
	msgs[7].MediaType = "photo"
	if _, err := store.InsertAll(context.Background(), msgs); err != nil {
		t.Fatalf("InsertAll() error = %v", err)
	}
	return store
}

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t)
	store := seedStore(t)
	fake := &fakeSummarizer{fail: map[string]bool{batchKey(1, 2): true}}
	p := NewPipeline(cfg, store, fake)

	rep, err := p.Run(context.Background(), cfg.Chats[0], internal.TestDay.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rep.Date != "2026-03-14" || rep.ChatName != "Crypto Lounge" || rep.RunID == "" {
		t.Errorf("report header = %+v", rep)
	}
	if rep.Stats.Total != 12 {
		t.Errorf("Total = %d, want 12", rep.Stats.Total)
	}
	if len(rep.Stats.Media) != 1 || rep.Stats.Media[0].Kind != "photo" {
		t.Errorf("Media = %+v", rep.Stats.Media)
	}

	replies := rep.Stats.PopularReplies
	if len(replies) != 3 {
		t.Fatalf("PopularReplies = %+v", replies)
	}
	if replies[0].MessageID != 1 || replies[0].Replies != 5 || !replies[0].Known || replies[0].Sender != "@alice" {
		t.Errorf("first reply target = %+v", replies[0])
	}
	if replies[1].MessageID != 50 || replies[1].Known {
		t.Errorf("second reply target = %+v", replies[1])
	}
	if replies[0].Link != "https://t.me/cryptolounge/1" {
		t.Errorf("Link = %s", replies[0].Link)
	}

	ai := rep.AI
	if ai == nil || ai.Problem != "" {
		t.Fatalf("AI section = %+v", ai)
	}
	if ai.ThreadCount != 3 || len(ai.Threads) != 3 {
		t.Fatalf("ThreadCount = %d, threads = %d, want 3", ai.ThreadCount, len(ai.Threads))
	}
	wantOrder := []int64{1, internal.TopLevelThreadID, 50}
	for i, id := range wantOrder {
		if ai.Threads[i].ThreadID != id {
			t.Errorf("thread %d = %d, want %d", i, ai.Threads[i].ThreadID, id)
		}
	}

	// Thread 1: three batches, the second fails without affecting the others.
	th := ai.Threads[0]
	res := th.Result
	if res.BatchCount != 3 || res.AllFailed || len(res.Failures) != 1 || res.Failures[0].Index != 2 {
		t.Errorf("thread 1 result = %+v", res)
	}
	wantOveralls := []string{"Batch 1/3: summary of batch 1", "Batch 3/3: summary of batch 3"}
	if strings.Join(res.BatchOveralls, "|") != strings.Join(wantOveralls, "|") {
		t.Errorf("BatchOveralls = %v, want %v", res.BatchOveralls, wantOveralls)
	}
	var refIDs []int64
	for _, ref := range th.References {
		refIDs = append(refIDs, ref.MessageID)
		if !ref.Known {
			t.Errorf("reference %d should be resolved", ref.MessageID)
		}
	}
	if fmt.Sprint(refIDs) != "[2 1 6]" {
		t.Errorf("reference ids = %v, want [2 1 6]", refIDs)
	}

	// Thread 50: every message replies to an unknown message, so no call is made.
	orphan := ai.Threads[2].Result
	if !orphan.AllFailed || len(orphan.Failures) != 2 {
		t.Errorf("thread 50 result = %+v", orphan)
	}

	if got := fake.callCount(); got != 5 {
		t.Errorf("summarizer calls = %d, want 5", got)
	}
	for _, req := range fake.calls {
		if req.ThreadID != 1 {
			continue
		}
		for _, m := range req.Messages {
			if m.RepliedMessage == nil || m.RepliedMessage.ID != 1 {
				t.Errorf("thread 1 message %d lacks reply context", m.ID)
			}
		}
		if req.ThreadSize != 5 || req.ChatType != "crypto" {
			t.Errorf("request = %+v", req)
		}
	}
}

func TestPipelineRunWithoutAI(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableAISummary = false
	fake := &fakeSummarizer{}

	rep, err := NewPipeline(cfg, seedStore(t), fake).Run(context.Background(), cfg.Chats[0], internal.TestDay)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.AI != nil {
		t.Errorf("AI section = %+v, want nil", rep.AI)
	}
	if fake.callCount() != 0 {
		t.Error("summarizer called with AI disabled")
	}
}

func TestPipelineRunConfigProblem(t *testing.T) {
	cfg := testConfig(t)
	cfg.AIAPIKey = ""
	fake := &fakeSummarizer{}

	rep, err := NewPipeline(cfg, seedStore(t), fake).Run(context.Background(), cfg.Chats[0], internal.TestDay)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.AI == nil || !strings.Contains(rep.AI.Problem, "ai_api_key") {
		t.Errorf("AI section = %+v, want a configuration problem", rep.AI)
	}
	if fake.callCount() != 0 {
		t.Error("summarizer called without configuration")
	}
}

func TestPipelineRunEmptyDay(t *testing.T) {
	cfg := testConfig(t)
	rep, err := NewPipeline(cfg, seedStore(t), &fakeSummarizer{}).Run(context.Background(), cfg.Chats[0], internal.TestDay.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Stats.Total != 0 || rep.AI.ThreadCount != 0 || len(rep.AI.Threads) != 0 {
		t.Errorf("empty day report = %+v", rep)
	}
}

type recordingPublisher struct {
	events []notify.ReportEvent
}

func (p *recordingPublisher) PublishReport(_ context.Context, ev notify.ReportEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func TestRunnerRunAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.SendReport = true
	cfg.Chats = append(cfg.Chats, internal.ChatConfig{ChatID: 2002})

	pub := &recordingPublisher{}
	exp, _ := report.NewExporter("md")
	runner := NewRunner(cfg, NewPipeline(cfg, seedStore(t), &fakeSummarizer{}), exp, pub)

	outputs, err := runner.RunAll(context.Background(), cfg.Chats, internal.TestDay)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("RunAll() wrote %d reports, want 2", len(outputs))
	}
	if !strings.HasSuffix(outputs[0].Path, "2026-03-14_Crypto_Lounge_1001.md") {
		t.Errorf("path = %s", outputs[0].Path)
	}
	if !strings.HasSuffix(outputs[1].Path, "2026-03-14_2002.md") {
		t.Errorf("path = %s", outputs[1].Path)
	}
	data, err := os.ReadFile(outputs[0].Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "### Thread 1 (5 messages)") {
		t.Errorf("report content:\n%s", data)
	}
	if len(pub.events) != 2 || pub.events[0].ChatID != 1001 {
		t.Errorf("published events = %+v", pub.events)
	}
}

func TestRunnerRunAllContinuesAfterFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReportDir = "/dev/null/reports"

	exp, _ := report.NewExporter("json")
	runner := NewRunner(cfg, NewPipeline(cfg, seedStore(t), &fakeSummarizer{}), exp, nil)

	outputs, err := runner.RunAll(context.Background(), cfg.Chats, internal.TestDay)
	if err == nil {
		t.Fatal("RunAll() into an unwritable dir should fail")
	}
	var exportErr *internal.ExportError
	if !errors.As(err, &exportErr) {
		t.Errorf("error = %v, want ExportError", err)
	}
	if len(outputs) != 0 {
		t.Errorf("outputs = %v", outputs)
	}
}

func TestDayWindow(t *testing.T) {
	loc := internal.TestDay.Location()
	start, end := DayWindow(internal.TestDay.Add(23*time.Hour), loc)
	if !start.Equal(internal.TestDay) || !end.Equal(internal.TestDay.AddDate(0, 0, 1)) {
		t.Errorf("DayWindow() = %v, %v", start, end)
	}
}
