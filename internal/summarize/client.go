package summarize

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/internal/metrics"
)

const (
	schemaName  = "thread_summary"
	temperature = 0.2
)

// Summarizer turns one batch into a structured result.
type Summarizer interface {
	Summarize(ctx context.Context, req *Request) (*internal.StructuredResult, error)
}

// Options configures the chat completions client.
type Options struct {
	BaseURL             string
	APIKey              string
	Model               string
	Timeout             time.Duration
	MaxRetries          int
	RequestsPerMinute   int // 0 disables rate limiting
	Language            string
	PreferredCategories []string
	ResponseSchema      bool // request strict JSON schema output
}

// OptionsFromConfig maps application config onto client options.
func OptionsFromConfig(cfg *internal.Config) Options {
	return Options{
		BaseURL:             cfg.AIAPIBase,
		APIKey:              cfg.AIAPIKey,
		Model:               cfg.AIModel,
		Timeout:             cfg.AITimeout(),
		MaxRetries:          cfg.AIMaxRetries,
		RequestsPerMinute:   cfg.AIRequestsPerMinute,
		Language:            cfg.AILanguage,
		PreferredCategories: cfg.Priority().Names(),
		ResponseSchema:      cfg.AIResponseSchema,
	}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	api     openai.Client
	opts    Options
	limiter *rate.Limiter
	schema  map[string]any
}

// NewClient builds a client. The schema is generated once up front when
// structured output is requested.
func NewClient(opts Options) (*Client, error) {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/") + "/"),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	c := &Client{
		api:  openai.NewClient(reqOpts...),
		opts: opts,
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	if opts.ResponseSchema {
		schema, err := GenerateSchema[internal.StructuredResult]()
		if err != nil {
			return nil, err
		}
		c.schema = schema
	}
	return c, nil
}

// Summarize sends one batch and decodes the reply. Errors are
// TransportError, MalformedResponseError or ExtractionError.
func (c *Client) Summarize(ctx context.Context, req *Request) (*internal.StructuredResult, error) {
	payloadJSON, err := MarshalPayload(req, c.opts.PreferredCategories)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.SummarizeRequests.WithLabelValues("transport").Inc()
			return nil, &internal.TransportError{Op: "rate_limit", Err: err}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(c.opts.PreferredCategories)),
			openai.UserMessage(UserPrompt(payloadJSON, req.ChatType, c.opts.Language)),
		},
		Temperature: openai.Float(temperature),
	}
	if c.schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: c.schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	internal.LogDebug("Summarizing chat %d thread %d batch %d/%d (%d messages)",
		req.ChatID, req.ThreadID, req.Batch.Index, req.Batch.Total, len(req.Messages))

	var raw *http.Response
	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params, option.WithResponseInto(&raw))
	metrics.SummarizeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if raw != nil && raw.StatusCode >= 200 && raw.StatusCode < 300 {
			metrics.SummarizeRequests.WithLabelValues("malformed").Inc()
			return nil, &internal.MalformedResponseError{Reason: "undecodable response body: " + err.Error()}
		}
		metrics.SummarizeRequests.WithLabelValues("transport").Inc()
		return nil, classifyTransport(err)
	}

	if len(resp.Choices) == 0 {
		metrics.SummarizeRequests.WithLabelValues("malformed").Inc()
		return nil, &internal.MalformedResponseError{Reason: "no choices in response"}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		metrics.SummarizeRequests.WithLabelValues("malformed").Inc()
		return nil, &internal.MalformedResponseError{Reason: "empty message content"}
	}

	result, strategy, err := internal.ParseStructuredResult(content)
	if err != nil {
		if errors.Is(err, internal.ErrExtractionFailed) {
			metrics.SummarizeRequests.WithLabelValues("extraction").Inc()
		} else {
			metrics.SummarizeRequests.WithLabelValues("malformed").Inc()
		}
		return nil, err
	}

	metrics.ExtractionStrategy.WithLabelValues(string(strategy)).Inc()
	metrics.SummarizeRequests.WithLabelValues("ok").Inc()
	return result, nil
}

func classifyTransport(err error) error {
	te := &internal.TransportError{Op: "chat_completion", Err: err}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		te.StatusCode = apiErr.StatusCode
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}
