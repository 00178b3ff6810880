package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/notify"
	"github.com/wingbywings/telegroup/internal/report"
)

// Output is one written report.
type Output struct {
	Chat   internal.ChatConfig
	Report *report.Report
	Path   string
}

// Runner generates, writes and announces reports for configured chats.
type Runner struct {
	cfg       *internal.Config
	pipeline  *Pipeline
	exporter  report.Exporter
	publisher notify.Publisher
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(cfg *internal.Config, pipeline *Pipeline, exporter report.Exporter, publisher notify.Publisher) *Runner {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &Runner{cfg: cfg, pipeline: pipeline, exporter: exporter, publisher: publisher}
}

// RunChat builds and writes the report of one chat.
func (r *Runner) RunChat(ctx context.Context, chat internal.ChatConfig, day time.Time) (*Output, error) {
	rep, err := r.pipeline.Run(ctx, chat, day)
	if err != nil {
		return nil, err
	}
	path, err := report.Write(rep, r.cfg.ReportDir, chat.Name, r.exporter)
	if err != nil {
		return nil, err
	}
	internal.LogInfo("Report written to %s", path)

	if r.cfg.SendReport {
		ev := notify.NewReportEvent(rep, r.exporter.Extension(), path)
		if err := r.publisher.PublishReport(ctx, ev); err != nil {
			internal.LogWarn("Failed to publish report for chat %d: %v", chat.ChatID, err)
		}
	}
	return &Output{Chat: chat, Report: rep, Path: path}, nil
}

// RunAll reports every chat. A failing chat is logged and the next one
// continues; the joined errors are returned alongside the outputs.
func (r *Runner) RunAll(ctx context.Context, chats []internal.ChatConfig, day time.Time) ([]*Output, error) {
	var outputs []*Output
	var errs []error
	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, err := r.RunChat(ctx, chat, day)
		if err != nil {
			internal.LogError("Report for chat %d failed: %v", chat.ChatID, err)
			errs = append(errs, fmt.Errorf("chat %d: %w", chat.ChatID, err))
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs, errors.Join(errs...)
}
