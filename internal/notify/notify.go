package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
	"github.com/wingbywings/telegroup/internal/report"
)

// DefaultSubject is used when nats_subject is not configured.
const DefaultSubject = "telegroup.report.generated"

// ReportEvent announces a written report.
type ReportEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id"`
	ChatID      int64     `json:"chat_id"`
	ChatName    string    `json:"chat_name"`
	Date        string    `json:"date"`
	Format      string    `json:"format"`
	Path        string    `json:"path"`
	Messages    int       `json:"messages"`
	Threads     int       `json:"threads"`
	Failed      int       `json:"failed_threads"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewReportEvent describes r, written to path in format.
func NewReportEvent(r *report.Report, format, path string) ReportEvent {
	ev := ReportEvent{
		EventID:     uuid.NewString(),
		RunID:       r.RunID,
		ChatID:      r.ChatID,
		ChatName:    r.ChatName,
		Date:        r.Date,
		Format:      format,
		Path:        path,
		Messages:    r.Stats.Total,
		GeneratedAt: r.GeneratedAt,
	}
	if r.AI != nil {
		ev.Threads = len(r.AI.Threads)
		for _, th := range r.AI.Threads {
			if th.Result != nil && th.Result.AllFailed {
				ev.Failed++
			}
		}
	}
	return ev
}

// Publisher sends report events.
type Publisher interface {
	PublishReport(ctx context.Context, ev ReportEvent) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishReport(context.Context, ReportEvent) error { return nil }
func (NopPublisher) Close() {}

// NATSPublisher publishes events as JSON on one subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to url. An empty url yields a NopPublisher.
func NewPublisher(url, subject string) (Publisher, error) {
	if url == "" {
		return NopPublisher{}, nil
	}
	if subject == "" {
		subject = DefaultSubject
	}

	opts := []nats.Option{
		nats.Name("telegroup"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				internal.LogWarn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			internal.LogInfo("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// PublishReport publishes ev and flushes so delivery errors surface here.
func (p *NATSPublisher) PublishReport(ctx context.Context, ev ReportEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		metrics.ReportsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		metrics.ReportsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		metrics.ReportsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	metrics.ReportsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Ping checks that a NATS server answers at url within timeout.
func Ping(url string, timeout time.Duration) error {
	nc, err := nats.Connect(url, nats.Timeout(timeout), nats.Name("telegroup-healthcheck"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	return nc.FlushTimeout(timeout)
}
