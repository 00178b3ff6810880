package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wingbywings/telegroup/internal"
)

const mediaLabel = "[media]"

// MarkdownExporter renders the human-readable daily digest
type MarkdownExporter struct{}

// Export renders r as Markdown
func (e *MarkdownExporter) Export(r *Report, w io.Writer) error {
	var b strings.Builder

	writeHeader(&b, r)
	writeStats(&b, r)
	if r.AI != nil {
		writeAISection(&b, r)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

func writeHeader(b *strings.Builder, r *Report) {
	fmt.Fprintf(b, "# %s %s daily digest\n", r.Date, r.ChatName)
	fmt.Fprintf(b, "- Chat ID: `%d`\n", r.ChatID)
	if !r.Stats.First.IsZero() {
		fmt.Fprintf(b, "- Time range: %s ~ %s (%s)\n",
			r.Stats.First.Format(time.RFC3339), r.Stats.Last.Format(time.RFC3339), r.Timezone)
	} else {
		fmt.Fprintf(b, "- Time range: no messages (%s)\n", r.Timezone)
	}
	fmt.Fprintf(b, "- Total messages: %s\n", humanize.Comma(int64(r.Stats.Total)))
	fmt.Fprintf(b, "- Participants: %s\n", humanize.Comma(int64(r.Stats.Participants)))
	b.WriteString("\n")
}

func writeStats(b *strings.Builder, r *Report) {
	fmt.Fprintf(b, "## Top %d active users\n", TopN)
	if len(r.Stats.TopUsers) == 0 {
		b.WriteString("- None\n")
	}
	for _, u := range r.Stats.TopUsers {
		fmt.Fprintf(b, "- %s: %s\n", u.User, humanize.Comma(int64(u.Count)))
	}
	b.WriteString("\n")

	b.WriteString("## Media breakdown\n")
	if len(r.Stats.Media) == 0 {
		b.WriteString("- None\n")
	}
	for _, m := range r.Stats.Media {
		fmt.Fprintf(b, "- %s: %s\n", m.Kind, humanize.Comma(int64(m.Count)))
	}
	b.WriteString("\n")

	b.WriteString("## Popular reply threads\n")
	if len(r.Stats.PopularReplies) == 0 {
		b.WriteString("- None\n")
	}
	for _, t := range r.Stats.PopularReplies {
		target := fmt.Sprintf("%d", t.MessageID)
		if t.Link != "" {
			target = fmt.Sprintf("[%d](%s)", t.MessageID, t.Link)
		}
		replies := humanize.Comma(int64(t.Replies)) + " " + plural(t.Replies, "reply", "replies")
		if !t.Known {
			fmt.Fprintf(b, "- Reply to %s: %s (original message not in store)\n", target, replies)
			continue
		}
		preview := Preview(t.Text, PreviewLength)
		if preview == "" {
			preview = mediaLabel
			if t.MediaType == "" {
				preview = "[empty message]"
			}
		}
		fmt.Fprintf(b, "- Reply to %s (%s): %s (%s)\n", target, t.Sender, preview, replies)
	}
	b.WriteString("\n")
}

func writeAISection(b *strings.Builder, r *Report) {
	ai := r.AI
	b.WriteString("## AI summary\n")
	if ai.Problem != "" {
		fmt.Fprintf(b, "- AI summary not generated: %s.\n\n", ai.Problem)
		return
	}
	if len(ai.Threads) == 0 {
		fmt.Fprintf(b, "- No qualifying threads (at least %d messages).\n\n", ai.Threshold)
		return
	}
	fmt.Fprintf(b, "- %d %s qualified for analysis (at least %d messages)\n\n",
		ai.ThreadCount, plural(ai.ThreadCount, "thread", "threads"), ai.Threshold)

	for _, th := range ai.Threads {
		writeThread(b, r.ChatLink, th)
	}
}

func writeThread(b *strings.Builder, chatLink string, th ThreadSummary) {
	fmt.Fprintf(b, "### %s (%s messages)\n", th.Name, humanize.Comma(int64(th.MessageCount)))

	res := th.Result
	if res == nil {
		b.WriteString("  - No summary available.\n\n")
		return
	}
	multi := res.BatchCount > 1
	if multi {
		fmt.Fprintf(b, "  - Large thread split into %d batches (up to %d messages each)\n",
			res.BatchCount, th.BatchSize)
	}
	for _, f := range res.Failures {
		if multi {
			fmt.Fprintf(b, "  - Batch %d/%d failed: %s\n", f.Index, f.Total, f.Reason)
		} else {
			fmt.Fprintf(b, "  - AI summary failed: %s\n", f.Reason)
		}
	}

	if res.AllFailed {
		if multi {
			b.WriteString("  - All batches failed\n")
		}
		b.WriteString("\n")
		return
	}

	switch {
	case multi && len(res.BatchOveralls) > 0:
		b.WriteString("  - Overview (per batch):\n")
		for _, o := range res.BatchOveralls {
			fmt.Fprintf(b, "    - %s\n", o)
		}
	case res.Overall != "":
		fmt.Fprintf(b, "  - Overview: %s\n", res.Overall)
	}

	if len(res.Categories) == 0 {
		b.WriteString("  - No categories returned.\n\n")
		return
	}

	if multi {
		b.WriteString("  - Categories (all batches merged):\n")
	} else {
		b.WriteString("  - Categories:\n")
	}
	for _, cat := range res.Categories {
		writeCategory(b, cat)
	}
	writeReferences(b, chatLink, th.References)
	b.WriteString("\n")
}

func writeCategory(b *strings.Builder, cat internal.MergedCategory) {
	fmt.Fprintf(b, "    - **%s**\n", cat.Name)
	for _, line := range strings.Split(cat.Summary(), "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintf(b, "      %s\n", line)
		}
	}
}

func writeReferences(b *strings.Builder, chatLink string, refs []Reference) {
	if len(refs) == 0 {
		return
	}
	b.WriteString("    - **Original references:**\n\n")
	for i, ref := range refs {
		idx := i + 1
		display := ""
		if ref.Known {
			display = escapeLinkText(Preview(ref.Text, PreviewLength))
			if display == "" {
				display = mediaLabel
			}
		}
		link := ref.Link
		if link == "" {
			link = MessageLink(chatLink, ref.MessageID)
		}

		switch {
		case link != "" && display != "":
			fmt.Fprintf(b, "      %d. [%d: %s](%s)\n", idx, ref.MessageID, display, link)
		case link != "":
			fmt.Fprintf(b, "      %d. [%d](%s)\n", idx, ref.MessageID, link)
		case display != "":
			fmt.Fprintf(b, "      %d. %d: %s\n", idx, ref.MessageID, display)
		default:
			fmt.Fprintf(b, "      %d. %d\n", idx, ref.MessageID)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
