package summarize

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You summarize group chat conversations.
Given chat metadata and messages, return a JSON object with these keys:
- overall: a short paragraph describing the thread
- categories: a list of {name, summary, messages} objects, where messages holds only the ids of the messages the category is based on
Be concise. If max_categories is given, return at most that many categories.
Prefer these category names when they fit: %s.
Respond with the JSON object only.`

var chatTypeFocus = map[string]string{
	"crypto": "This is a crypto trading community: surface price moves, listings, protocol upgrades, security incidents and market sentiment.",
	"tech":   "This is a technical community: surface releases, bugs, design decisions, tooling and open questions.",
	"news":   "This is a news channel discussion: surface the reported events, sources cited and disagreements.",
}

// SystemPrompt builds the system message.
func SystemPrompt(preferred []string) string {
	names := "any short descriptive names"
	if len(preferred) > 0 {
		names = strings.Join(preferred, ", ")
	}
	return fmt.Sprintf(systemPromptTemplate, names)
}

// UserPrompt builds the user message around the JSON payload.
func UserPrompt(payloadJSON []byte, chatType, language string) string {
	var b strings.Builder
	b.WriteString("Analyze the following group chat messages and produce the JSON object described above.\n")
	if focus, ok := chatTypeFocus[chatType]; ok {
		b.WriteString(focus)
		b.WriteString("\n")
	}
	if language != "" {
		fmt.Fprintf(&b, "Write overall and summaries in %s.\n", language)
	}
	b.WriteString("Keep only message ids in the messages field so every point can be traced back.\n")
	b.WriteString("Input JSON:\n")
	b.Write(payloadJSON)
	return b.String()
}
