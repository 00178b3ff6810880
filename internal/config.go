package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "config/config.yaml"

// DefaultMinThreadMessages is the smallest thread that gets summarized.
const DefaultMinThreadMessages = 3

// Chat types that change how the summarizer is prompted.
var validChatTypes = map[string]bool{"crypto": true, "tech": true, "news": true}

// Environment overrides, applied after the file is read.
const (
	EnvAIAPIKey  = "TELEGROUP_AI_API_KEY"
	EnvAIAPIBase = "TELEGROUP_AI_API_BASE"
	EnvNATSURL   = "TELEGROUP_NATS_URL"
)

// ChatConfig holds per-chat settings
type ChatConfig struct {
	ChatID            int64  `yaml:"chat_id" json:"chat_id"`
	ChatLink          string `yaml:"chat_link,omitempty" json:"chat_link,omitempty"`
	Name              string `yaml:"name,omitempty" json:"name,omitempty"`
	ChatType          string `yaml:"chat_type,omitempty" json:"chat_type,omitempty"`
	MinThreadMessages int    `yaml:"min_thread_messages,omitempty" json:"min_thread_messages,omitempty"`
}

// DisplayName returns the configured name or a fallback built from the id.
func (c ChatConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("Chat %d", c.ChatID)
}

// Config is the application configuration
type Config struct {
	Chats []ChatConfig `yaml:"chats"`

	// Legacy single-chat keys.
	LegacyChatID   int64  `yaml:"chat_id,omitempty"`
	LegacyChatLink string `yaml:"chat_link,omitempty"`
	LegacyChatName string `yaml:"chat_name,omitempty"`

	DBPath    string `yaml:"db_path"`
	ReportDir string `yaml:"report_dir"`
	StatePath string `yaml:"state_path"`
	Timezone  string `yaml:"timezone"`
	PullDays  int    `yaml:"pull_days"`
	LogLevel  string `yaml:"log_level"`

	EnableAISummary       bool     `yaml:"enable_ai_summary"`
	AIAPIBase             string   `yaml:"ai_api_base"`
	AIAPIKey              string   `yaml:"ai_api_key"`
	AIModel               string   `yaml:"ai_model"`
	AIMaxCategories       int      `yaml:"ai_max_categories"`
	AITimeoutSeconds      int      `yaml:"ai_timeout"`
	AIStyle               string   `yaml:"ai_style"`
	AILanguage            string   `yaml:"ai_language"`
	AIMaxMessagesPerBatch int      `yaml:"ai_max_messages_per_batch"`
	AIConcurrency         int      `yaml:"ai_concurrency"`
	AIRequestsPerMinute   int      `yaml:"ai_requests_per_minute"`
	AIMaxRetries          int      `yaml:"ai_max_retries"`
	AIResponseSchema      bool     `yaml:"ai_response_schema"`
	CategoryPriority      []string `yaml:"category_priority"`
	MinThreadMessages     int      `yaml:"min_thread_messages"`

	ReportFormat string `yaml:"report_format"`
	SendReport   bool   `yaml:"send_report"`
	NATSURL      string `yaml:"nats_url"`
	NATSSubject  string `yaml:"nats_subject"`
	Listen       string `yaml:"listen"`
	Schedule     string `yaml:"schedule"`

	location *time.Location
}

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		DBPath:                "data/messages.db",
		ReportDir:             "reports",
		StatePath:             "data/state.yaml",
		Timezone:              "UTC",
		PullDays:              2,
		LogLevel:              "info",
		AIModel:               "grok-beta",
		AIMaxCategories:       5,
		AITimeoutSeconds:      120,
		AILanguage:            "English",
		AIMaxMessagesPerBatch: 200,
		AIConcurrency:         1,
		MinThreadMessages:     DefaultMinThreadMessages,
		ReportFormat:          "md",
		NATSSubject:           "telegroup.report.generated",
		Listen:                ":8080",
	}
}

// LoadConfig reads a YAML (or JSON) config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "file", Err: err}
	}
	return ParseConfig(data)
}

// ParseConfig decodes config data on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Field: "file", Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}
	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAIAPIKey); v != "" {
		c.AIAPIKey = v
	}
	if v := os.Getenv(EnvAIAPIBase); v != "" {
		c.AIAPIBase = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATSURL = v
	}
}

func (c *Config) normalize() error {
	if len(c.Chats) == 0 && c.LegacyChatID != 0 {
		c.Chats = []ChatConfig{{ChatID: c.LegacyChatID, ChatLink: c.LegacyChatLink, Name: c.LegacyChatName}}
	}

	for i := range c.Chats {
		chat := &c.Chats[i]
		chat.ChatLink = strings.TrimRight(strings.TrimSpace(chat.ChatLink), "/")
		chatType := strings.ToLower(strings.TrimSpace(chat.ChatType))
		if chatType != "" && !validChatTypes[chatType] {
			LogWarn("Chat %d: unknown chat_type %q, using automatic detection", chat.ChatID, chat.ChatType)
			chatType = ""
		}
		chat.ChatType = chatType
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		LogWarn("Unknown timezone %q, falling back to UTC", c.Timezone)
		loc = time.UTC
		c.Timezone = "UTC"
	}
	c.location = loc

	return c.Validate()
}

// Validate checks field ranges and required values.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Chats) == 0 {
		errs = append(errs, &ConfigError{Field: "chats", Err: errors.New("at least one chat is required")})
	}
	seen := make(map[int64]bool)
	for i, chat := range c.Chats {
		field := fmt.Sprintf("chats[%d]", i)
		if chat.ChatID == 0 {
			errs = append(errs, &ConfigError{Field: field + ".chat_id", Err: errors.New("required")})
		}
		if seen[chat.ChatID] {
			errs = append(errs, &ConfigError{Field: field + ".chat_id", Err: fmt.Errorf("duplicate chat %d", chat.ChatID)})
		}
		seen[chat.ChatID] = true
		if chat.MinThreadMessages < 0 {
			errs = append(errs, &ConfigError{Field: field + ".min_thread_messages", Err: errors.New("must be at least 1")})
		}
	}
	if c.DBPath == "" {
		errs = append(errs, &ConfigError{Field: "db_path", Err: errors.New("required")})
	}
	if c.PullDays < 1 {
		errs = append(errs, &ConfigError{Field: "pull_days", Err: errors.New("must be at least 1")})
	}
	if c.AIMaxMessagesPerBatch < 1 {
		errs = append(errs, &ConfigError{Field: "ai_max_messages_per_batch", Err: errors.New("must be at least 1")})
	}
	if c.AITimeoutSeconds < 1 {
		errs = append(errs, &ConfigError{Field: "ai_timeout", Err: errors.New("must be at least 1 second")})
	}
	if c.AIConcurrency < 1 {
		errs = append(errs, &ConfigError{Field: "ai_concurrency", Err: errors.New("must be at least 1")})
	}
	if c.AIRequestsPerMinute < 0 || c.AIMaxRetries < 0 || c.AIMaxCategories < 0 {
		errs = append(errs, &ConfigError{Field: "ai", Err: errors.New("negative limits are not allowed")})
	}
	if c.MinThreadMessages < 1 {
		errs = append(errs, &ConfigError{Field: "min_thread_messages", Err: errors.New("must be at least 1")})
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, &ConfigError{Field: "log_level", Err: err})
	}
	return errors.Join(errs...)
}

// Location returns the reporting time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// AITimeout returns the per-call timeout.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// AIConfigProblem returns a human-readable reason the summarizer cannot run, or "".
func (c *Config) AIConfigProblem() string {
	var missing []string
	if strings.TrimSpace(c.AIAPIBase) == "" {
		missing = append(missing, "ai_api_base")
	}
	if strings.TrimSpace(c.AIAPIKey) == "" {
		missing = append(missing, "ai_api_key")
	}
	if len(missing) == 0 {
		return ""
	}
	return "AI summary is enabled but " + strings.Join(missing, " and ") + " is not configured"
}

// ThresholdFor returns the minimum thread size for a chat.
func (c *Config) ThresholdFor(chat ChatConfig) int {
	if chat.MinThreadMessages > 0 {
		return chat.MinThreadMessages
	}
	return c.MinThreadMessages
}

// Priority returns the category ordering table.
func (c *Config) Priority() PriorityTable {
	if len(c.CategoryPriority) > 0 {
		return NewPriorityTable(c.CategoryPriority)
	}
	return NewPriorityTable(DefaultCategoryOrder)
}

// FindChat looks up a configured chat by id.
func (c *Config) FindChat(chatID int64) (ChatConfig, bool) {
	for _, chat := range c.Chats {
		if chat.ChatID == chatID {
			return chat, true
		}
	}
	return ChatConfig{}, false
}
