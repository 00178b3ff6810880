package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
	"github.com/wingbywings/telegroup/internal/report"
	"github.com/wingbywings/telegroup/internal/summarize"
)

// errEmptyBatch marks a batch whose every message was a reply to an unknown message.
var errEmptyBatch = errors.New("no messages left after dropping replies to unknown messages")

// Store is the read side of the message store used by the pipeline.
type Store interface {
	FetchRange(ctx context.Context, chatID int64, start, end time.Time) ([]*internal.Message, error)
	GetMessages(ctx context.Context, chatID int64, ids []int64) (map[int64]*internal.Message, error)
}

// Pipeline builds one chat-day report: statistics, thread classification,
// batched summarization and merging.
type Pipeline struct {
	cfg        *internal.Config
	store      Store
	summarizer summarize.Summarizer
	merger     *internal.Merger
	now        func() time.Time
	newRunID   func() string
}

// NewPipeline creates a pipeline. summarizer may be nil when AI summaries are
// disabled or not configured.
func NewPipeline(cfg *internal.Config, store Store, summarizer summarize.Summarizer) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		summarizer: summarizer,
		merger:     internal.NewMerger(cfg.Priority()),
		now:        time.Now,
		newRunID:   func() string { return uuid.NewString() },
	}
}

// DayWindow returns [start, end) of the calendar day containing t in loc.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Run builds the report of chat for the day containing day.
func (p *Pipeline) Run(ctx context.Context, chat internal.ChatConfig, day time.Time) (*report.Report, error) {
	loc := p.cfg.Location()
	start, end := DayWindow(day, loc)

	msgs, err := p.store.FetchRange(ctx, chat.ChatID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch messages of chat %d: %w", chat.ChatID, err)
	}

	rep := &report.Report{
		RunID:       p.newRunID(),
		Date:        start.Format("2006-01-02"),
		Timezone:    loc.String(),
		GeneratedAt: p.now(),
		ChatID:      chat.ChatID,
		ChatName:    chat.DisplayName(),
		ChatLink:    chat.ChatLink,
	}
	internal.LogInfo("Building report %s for %s (%d) on %s: %d messages",
		rep.RunID, rep.ChatName, chat.ChatID, rep.Date, len(msgs))

	stats, err := p.buildStats(ctx, chat, msgs, loc)
	if err != nil {
		return nil, err
	}
	rep.Stats = stats

	if !p.cfg.EnableAISummary {
		return rep, nil
	}

	threshold := p.cfg.ThresholdFor(chat)
	rep.AI = &report.AISection{Threshold: threshold, Threads: []report.ThreadSummary{}}
	if problem := p.cfg.AIConfigProblem(); problem != "" {
		internal.LogWarn("%s", problem)
		rep.AI.Problem = problem
		return rep, nil
	}
	if p.summarizer == nil {
		rep.AI.Problem = "summarizer is not available"
		return rep, nil
	}

	threads := internal.SelectThreads(internal.ClassifyThreads(msgs), threshold)
	rep.AI.ThreadCount = len(threads)
	for _, th := range threads {
		summary, err := p.summarizeThread(ctx, chat, rep.Date, loc, th)
		if err != nil {
			return nil, err
		}
		rep.AI.Threads = append(rep.AI.Threads, summary)
	}

	return rep, nil
}

func (p *Pipeline) buildStats(ctx context.Context, chat internal.ChatConfig, msgs []*internal.Message, loc *time.Location) (report.Stats, error) {
	ds := internal.ComputeStats(msgs)
	stats := report.Stats{
		Total:          ds.Total,
		Participants:   ds.Users.Len(),
		TopUsers:       []report.UserCount{},
		Media:          []report.MediaCount{},
		PopularReplies: []report.ReplyTarget{},
	}
	if !ds.First.IsZero() {
		stats.First = ds.First.In(loc)
		stats.Last = ds.Last.In(loc)
	}

	for _, u := range ds.Users.Top(report.TopN) {
		stats.TopUsers = append(stats.TopUsers, report.UserCount{User: u.Key, Count: u.Count})
	}
	for _, m := range ds.Media.Entries() {
		stats.Media = append(stats.Media, report.MediaCount{Kind: m.Key, Count: m.Count})
	}

	top := ds.Replies.Top(report.TopN)
	ids := make([]int64, len(top))
	for i, r := range top {
		ids[i] = r.Key
	}
	targets, err := p.store.GetMessages(ctx, chat.ChatID, ids)
	if err != nil {
		return stats, fmt.Errorf("look up reply targets of chat %d: %w", chat.ChatID, err)
	}
	for _, r := range top {
		rt := report.ReplyTarget{
			MessageID: r.Key,
			Replies:   r.Count,
			Link:      report.MessageLink(chat.ChatLink, r.Key),
		}
		if m, ok := targets[r.Key]; ok {
			rt.Known = true
			rt.Sender = m.Sender()
			rt.Text = m.Text
			rt.MediaType = m.MediaType
		}
		stats.PopularReplies = append(stats.PopularReplies, rt)
	}
	return stats, nil
}

// summarizeThread plans batches for one thread, summarizes them with bounded
// concurrency and merges the outcomes in batch order. A failing batch is
// recorded and never cancels its siblings.
func (p *Pipeline) summarizeThread(ctx context.Context, chat internal.ChatConfig, date string, loc *time.Location, th *internal.Thread) (report.ThreadSummary, error) {
	summary := report.ThreadSummary{
		ThreadID:     th.ID,
		Name:         th.Name(),
		MessageCount: len(th.Messages),
		BatchSize:    p.cfg.AIMaxMessagesPerBatch,
		References:   []report.Reference{},
	}

	replied, err := p.lookupReplyTargets(ctx, chat.ChatID, th.Messages)
	if err != nil {
		return summary, err
	}

	batches := internal.PlanBatches(th.Messages, p.cfg.AIMaxMessagesPerBatch)
	metrics.BatchesPlanned.Observe(float64(len(batches)))
	if len(batches) > 1 {
		internal.LogInfo("%s has %d messages, split into %d batches", th.Name(), len(th.Messages), len(batches))
	}

	outcomes := make([]internal.BatchOutcome, len(batches))
	var g errgroup.Group
	g.SetLimit(max(p.cfg.AIConcurrency, 1))

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			outcomes[i] = p.summarizeBatch(ctx, chat, date, loc, th, batch, replied)
			return nil
		})
	}
	// Failures are recorded per batch in outcomes; the group only bounds concurrency.
	_ = g.Wait()

	merged := p.merger.Merge(outcomes)
	for _, f := range merged.Failures {
		internal.LogWarn("%s batch %d/%d failed: %s", th.Name(), f.Index, f.Total, f.Reason)
	}
	switch {
	case merged.AllFailed:
		metrics.ThreadsSummarized.WithLabelValues("failed").Inc()
	case len(merged.Failures) > 0:
		metrics.ThreadsSummarized.WithLabelValues("partial").Inc()
	default:
		metrics.ThreadsSummarized.WithLabelValues("ok").Inc()
	}
	summary.Result = merged

	refs, err := p.buildReferences(ctx, chat, th, merged)
	if err != nil {
		return summary, err
	}
	summary.References = refs
	return summary, nil
}

func (p *Pipeline) summarizeBatch(ctx context.Context, chat internal.ChatConfig, date string, loc *time.Location, th *internal.Thread, batch internal.Batch, replied map[int64]*internal.Message) internal.BatchOutcome {
	outcome := internal.BatchOutcome{Index: batch.Index, Total: batch.Total}

	payload, dropped := summarize.BuildMessages(batch.Messages, replied, loc)
	if dropped > 0 {
		internal.LogDebug("%s batch %d/%d: dropped %d replies to unknown messages", th.Name(), batch.Index, batch.Total, dropped)
	}
	if len(payload) == 0 {
		metrics.SummarizeRequests.WithLabelValues("skipped").Inc()
		outcome.Err = errEmptyBatch
		return outcome
	}

	req := &summarize.Request{
		ChatID:        chat.ChatID,
		ChatName:      chat.DisplayName(),
		ChatType:      chat.ChatType,
		Date:          date,
		Timezone:      loc.String(),
		ThreadID:      th.ID,
		Batch:         batch,
		ThreadSize:    len(th.Messages),
		Messages:      payload,
		MaxCategories: p.cfg.AIMaxCategories,
		Style:         p.cfg.AIStyle,
	}
	outcome.Result, outcome.Err = p.summarizer.Summarize(ctx, req)
	return outcome
}

// lookupReplyTargets loads every message replied to from within msgs.
func (p *Pipeline) lookupReplyTargets(ctx context.Context, chatID int64, msgs []*internal.Message) (map[int64]*internal.Message, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range msgs {
		if m.IsReply() && !seen[m.ReplyTo] {
			seen[m.ReplyTo] = true
			ids = append(ids, m.ReplyTo)
		}
	}
	if len(ids) == 0 {
		return map[int64]*internal.Message{}, nil
	}
	found, err := p.store.GetMessages(ctx, chatID, ids)
	if err != nil {
		return nil, fmt.Errorf("look up reply targets of chat %d: %w", chatID, err)
	}
	return found, nil
}

// buildReferences lists the messages cited across a thread's categories,
// deduplicated in first-seen order.
func (p *Pipeline) buildReferences(ctx context.Context, chat internal.ChatConfig, th *internal.Thread, merged *internal.MergedResult) ([]report.Reference, error) {
	known := make(map[int64]*internal.Message, len(th.Messages))
	for _, m := range th.Messages {
		known[m.ID] = m
	}

	seen := make(map[int64]bool)
	var ids, missing []int64
	for _, cat := range merged.Categories {
		for _, id := range cat.MessageIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if _, ok := known[id]; !ok {
				missing = append(missing, id)
			}
		}
	}

	if len(missing) > 0 {
		extra, err := p.store.GetMessages(ctx, chat.ChatID, missing)
		if err != nil {
			return nil, fmt.Errorf("look up referenced messages of chat %d: %w", chat.ChatID, err)
		}
		for id, m := range extra {
			known[id] = m
		}
	}

	refs := make([]report.Reference, 0, len(ids))
	for _, id := range ids {
		ref := report.Reference{MessageID: id, Link: report.MessageLink(chat.ChatLink, id)}
		if m, ok := known[id]; ok {
			ref.Known = true
			ref.Text = m.Text
			ref.MediaType = m.MediaType
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
