package internal

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultCategoryRank is the rank of category names missing from the priority table.
const DefaultCategoryRank = 100

// DefaultCategoryOrder is the preferred display order of category names.
var DefaultCategoryOrder = []string{
	"Key Events",
	"Technical Updates",
	"Risk Warnings",
	"Sentiment",
	"Follow-ups",
}

// PriorityTable maps category names to display ranks; lower sorts first.
type PriorityTable map[string]int

// NewPriorityTable ranks names by their position, starting at 1.
func NewPriorityTable(names []string) PriorityTable {
	table := make(PriorityTable, len(names))
	for i, name := range names {
		if _, ok := table[name]; !ok {
			table[name] = i + 1
		}
	}
	return table
}

// Rank returns the rank of a category name.
func (p PriorityTable) Rank(name string) int {
	if rank, ok := p[name]; ok {
		return rank
	}
	return DefaultCategoryRank
}

// Names returns the table's names in rank order.
func (p PriorityTable) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if p[names[i]] != p[names[j]] {
			return p[names[i]] < p[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Merger combines per-batch results of one thread.
type Merger struct {
	priority PriorityTable
}

// NewMerger creates a merger ordering categories by the given table.
// A nil table falls back to DefaultCategoryOrder.
func NewMerger(priority PriorityTable) *Merger {
	if priority == nil {
		priority = NewPriorityTable(DefaultCategoryOrder)
	}
	return &Merger{priority: priority}
}

// Merge combines batch outcomes, given in batch order, into one thread result.
func (m *Merger) Merge(outcomes []BatchOutcome) *MergedResult {
	merged := &MergedResult{BatchCount: len(outcomes), Categories: []MergedCategory{}}
	multi := len(outcomes) > 1

	index := make(map[string]int)
	seenIDs := make(map[string]map[int64]bool)
	succeeded := 0

	for _, out := range outcomes {
		if out.Err != nil || out.Result == nil {
			reason := "no result"
			if out.Err != nil {
				reason = out.Err.Error()
			}
			merged.Failures = append(merged.Failures, BatchFailure{Index: out.Index, Total: out.Total, Reason: reason})
			continue
		}
		succeeded++

		if overall := out.Result.Overall; strings.TrimSpace(overall) != "" {
			if multi {
				merged.BatchOveralls = append(merged.BatchOveralls, fmt.Sprintf("Batch %d/%d: %s", out.Index, out.Total, overall))
			} else {
				merged.BatchOveralls = append(merged.BatchOveralls, overall)
			}
		}

		for _, cat := range out.Result.Categories {
			name := cat.Name
			if name == "" {
				name = defaultCategoryName
			}
			pos, ok := index[name]
			if !ok {
				pos = len(merged.Categories)
				index[name] = pos
				seenIDs[name] = make(map[int64]bool)
				merged.Categories = append(merged.Categories, MergedCategory{Name: name, Summaries: []string{}, MessageIDs: []int64{}})
			}
			mc := &merged.Categories[pos]
			if strings.TrimSpace(cat.Summary) != "" {
				mc.Summaries = append(mc.Summaries, cat.Summary)
			}
			for _, id := range cat.MessageIDs {
				if !seenIDs[name][id] {
					seenIDs[name][id] = true
					mc.MessageIDs = append(mc.MessageIDs, id)
				}
			}
		}
	}

	merged.AllFailed = len(outcomes) > 0 && succeeded == 0
	merged.Overall = strings.Join(merged.BatchOveralls, "\n")

	sort.SliceStable(merged.Categories, func(i, j int) bool {
		return m.priority.Rank(merged.Categories[i].Name) < m.priority.Rank(merged.Categories[j].Name)
	})

	return merged
}

// Summary joins a merged category's summaries for display.
func (c MergedCategory) Summary() string {
	return strings.Join(c.Summaries, " | ")
}
