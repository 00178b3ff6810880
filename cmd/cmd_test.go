package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingbywings/telegroup/internal"
	"github.com/wingbywings/telegroup/testutil"
)

// resetFlags clears flag state left behind by earlier executions of rootCmd.
func resetFlags() {
	verbose = false
	configPath = internal.DefaultConfigPath
	pullFile, pullChat, pullFormat = "", 0, ""
	reportDate, reportChat, reportFormat, reportStdout = "", 0, "", false
	threadsDate = ""
	serveListen = ""

	cmds := append([]*cobra.Command{rootCmd}, rootCmd.Commands()...)
	for _, c := range cmds {
		for _, name := range []string{"help", "version"} {
			if f := c.Flags().Lookup(name); f != nil {
				_ = f.Value.Set("false")
				f.Changed = false
			}
		}
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), err
}

// writeConfig writes a config whose paths all live in dir.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
db_path: %s
report_dir: %s
state_path: %s
timezone: UTC
pull_days: 36500
log_level: error
ai_max_messages_per_batch: 2
chats:
  - chat_id: 1001
    name: Crypto Lounge
    chat_link: https://t.me/cryptolounge
    chat_type: crypto
    min_thread_messages: 2
%s`, filepath.Join(dir, "messages.db"), filepath.Join(dir, "reports"), filepath.Join(dir, "state.yaml"), extra)
	return testutil.WriteFile(t, dir, "config.yaml", []byte(cfg))
}

// pulledConfig returns a config path whose store already holds the Telegram fixture.
func pulledConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := testutil.CreateTempDir(t)
	cfgPath := writeConfig(t, dir, extra)
	export := testutil.CreateTelegramExport(t, dir)

	out, err := executeCommand(t, "pull", "--config", cfgPath, "--file", export)
	if err != nil {
		t.Fatalf("pull error = %v", err)
	}
	if !strings.Contains(out, "Crypto Lounge") || !strings.Contains(out, "6 new") {
		t.Fatalf("pull output = %q", out)
	}
	return dir, cfgPath
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{name: "version flag", args: []string{"--version"}, want: "dev"},
		{name: "help flag", args: []string{"--help"}, want: "telegroup pull --file result.json"},
		{name: "unknown command", args: []string{"nonexistent-command"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range []string{"pull", "report", "threads", "chats", "healthcheck", "serve"} {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestPullTwiceIsIdempotent(t *testing.T) {
	dir, cfgPath := pulledConfig(t, "")

	out, err := executeCommand(t, "pull", "--config", cfgPath, "--file", filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatalf("second pull error = %v", err)
	}
	if !strings.Contains(out, "0 new") || !strings.Contains(out, "7 skipped") {
		t.Errorf("second pull output = %q", out)
	}
}

func TestPullMissingConfig(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	_, err := executeCommand(t, "pull", "--config", filepath.Join(dir, "missing.yaml"), "--file", "result.json")
	if err == nil {
		t.Fatal("pull with a missing config should fail")
	}
}

func TestReportToStdout(t *testing.T) {
	_, cfgPath := pulledConfig(t, "")

	out, err := executeCommand(t, "report", "--config", cfgPath, "--date", "2026-03-14", "--stdout")
	if err != nil {
		t.Fatalf("report error = %v", err)
	}
	for _, want := range []string{
		"# 2026-03-14 Crypto Lounge daily digest",
		"- Chat ID: `1001`",
		"- Total messages: 6",
		"- Participants: 4",
		"## Popular reply threads",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "## AI summary") {
		t.Error("AI section rendered although AI summaries are disabled")
	}
}

func TestReportWritesFiles(t *testing.T) {
	dir, cfgPath := pulledConfig(t, "")

	tests := []struct {
		format string
		file   string
		want   string
	}{
		{format: "md", file: "2026-03-14_Crypto_Lounge_1001.md", want: "# 2026-03-14 Crypto Lounge daily digest"},
		{format: "json", file: "2026-03-14_Crypto_Lounge_1001.json", want: `"chat_id": 1001`},
		{format: "yaml", file: "2026-03-14_Crypto_Lounge_1001.yaml", want: "chat_id: 1001"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if _, err := executeCommand(t, "report", "--config", cfgPath, "--date", "2026-03-14", "--format", tt.format); err != nil {
				t.Fatalf("report error = %v", err)
			}
			content := testutil.ReadFile(t, filepath.Join(dir, "reports", tt.file))
			if !strings.Contains(content, tt.want) {
				t.Errorf("%s does not contain %q:\n%s", tt.file, tt.want, content)
			}
		})
	}
}

func TestReportValidation(t *testing.T) {
	_, cfgPath := pulledConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad date", args: []string{"--date", "14/03/2026"}},
		{name: "unconfigured chat", args: []string{"--chat", "42"}},
		{name: "unknown format", args: []string{"--format", "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"report", "--config", cfgPath}, tt.args...)
			if _, err := executeCommand(t, args...); err == nil {
				t.Errorf("report %v should fail", tt.args)
			}
		})
	}
}

func TestThreadsCommand(t *testing.T) {
	_, cfgPath := pulledConfig(t, "")

	out, err := executeCommand(t, "threads", "1001", "--config", cfgPath, "--date", "2026-03-14")
	if err != nil {
		t.Fatalf("threads error = %v", err)
	}
	for _, want := range []string{
		"Crypto Lounge on 2026-03-14: 6 messages, 3 threads",
		"Thread 1",
		"Top-level messages",
		"Thread 99",
		"2 thread(s) with at least 2 messages would be summarized, up to 2 messages per batch",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("threads output missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "Thread 1 ") > strings.Index(out, "Top-level messages") {
		t.Error("largest thread should be listed first")
	}

	if _, err := executeCommand(t, "threads", "abc", "--config", cfgPath); err == nil {
		t.Error("threads with a non-numeric chat id should fail")
	}
}

func TestChatsCommand(t *testing.T) {
	_, cfgPath := pulledConfig(t, "")

	out, err := executeCommand(t, "chats", "--config", cfgPath)
	if err != nil {
		t.Fatalf("chats error = %v", err)
	}
	for _, want := range []string{"1 chat(s)", "1001", "Crypto Lounge"} {
		if !strings.Contains(out, want) {
			t.Errorf("chats output missing %q\n%s", want, out)
		}
	}
}

func TestBuildChatRows(t *testing.T) {
	cfg := &internal.Config{Chats: []internal.ChatConfig{{ChatID: 1, Name: "One"}, {ChatID: 2}}}
	stored := []internal.ChatSummary{{ChatID: 2, MessageCount: 5, LastID: 50}, {ChatID: 3, MessageCount: 1, LastID: 7}}
	state := &internal.StateFile{Chats: []internal.ChatState{{ChatID: 1, LastID: 9}}}

	rows := buildChatRows(cfg, stored, state)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	tests := []struct {
		idx        int
		id         int64
		name       string
		configured bool
		messages   int
	}{
		{0, 1, "One", true, 0},
		{1, 2, "Chat 2", true, 5},
		{2, 3, "Chat 3", false, 1},
	}
	for _, tt := range tests {
		r := rows[tt.idx]
		if r.ChatID != tt.id || r.Name != tt.name || r.Configured != tt.configured || r.Messages != tt.messages {
			t.Errorf("rows[%d] = %+v", tt.idx, r)
		}
	}
}

func TestHealthcheckCommand(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr bool
		want    string
	}{
		{
			name:  "healthy",
			extra: "schedule: \"0 2 * * *\"\n",
			want:  "Health check passed!",
		},
		{
			name:    "ai without credentials",
			extra:   "enable_ai_summary: true\n",
			wantErr: true,
			want:    "ai_api_base and ai_api_key is not configured",
		},
		{
			name:    "invalid schedule",
			extra:   "schedule: \"every day\"\n",
			wantErr: true,
			want:    "invalid cron expression",
		},
		{
			name:    "send report without nats",
			extra:   "send_report: true\n",
			wantErr: true,
			want:    "nats_url is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(internal.EnvAIAPIKey, "")
			t.Setenv(internal.EnvAIAPIBase, "")
			t.Setenv(internal.EnvNATSURL, "")
			_, cfgPath := pulledConfig(t, tt.extra)

			out, err := executeCommand(t, "healthcheck", "--config", cfgPath)
			if (err != nil) != tt.wantErr {
				t.Fatalf("healthcheck error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("healthcheck output missing %q\n%s", tt.want, out)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skip("time zone database not available")
	}
	day, err := parseDay("2026-03-14", loc)
	if err != nil {
		t.Fatalf("parseDay() error = %v", err)
	}
	if day.Format("2006-01-02 15:04 MST") != "2026-03-14 00:00 CST" {
		t.Errorf("parseDay() = %v", day)
	}
	if _, err := parseDay("2026-3-14x", loc); err == nil {
		t.Error("parseDay() should reject malformed dates")
	}
}

func TestMain(m *testing.M) {
	internal.SetLogOutput(&bytes.Buffer{})
	os.Exit(m.Run())
}
