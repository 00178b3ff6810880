package internal

import (
	"sort"
	"time"
)

// Counted is one entry of an OrderedCounter.
type Counted[K comparable] struct {
	Key   K
	Count int
}

// OrderedCounter counts keys and remembers first-seen order.
type OrderedCounter[K comparable] struct {
	index   map[K]int
	entries []Counted[K]
}

// NewOrderedCounter creates an empty counter.
func NewOrderedCounter[K comparable]() *OrderedCounter[K] {
	return &OrderedCounter[K]{index: make(map[K]int)}
}

// Add increments key by one.
func (c *OrderedCounter[K]) Add(key K) {
	if i, ok := c.index[key]; ok {
		c.entries[i].Count++
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, Counted[K]{Key: key, Count: 1})
}

// Len returns the number of distinct keys.
func (c *OrderedCounter[K]) Len() int {
	return len(c.entries)
}

// Entries returns all entries in first-seen order.
func (c *OrderedCounter[K]) Entries() []Counted[K] {
	out := make([]Counted[K], len(c.entries))
	copy(out, c.entries)
	return out
}

// Top returns the n most frequent keys. Equal counts keep first-seen order.
func (c *OrderedCounter[K]) Top(n int) []Counted[K] {
	out := c.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DayStats aggregates one chat's messages over a reporting window.
type DayStats struct {
	Total   int
	First   time.Time
	Last    time.Time
	Users   *OrderedCounter[string]
	Media   *OrderedCounter[string]
	Replies *OrderedCounter[int64]
}

// ComputeStats counts senders, media kinds and reply targets.
func ComputeStats(messages []*Message) *DayStats {
	stats := &DayStats{
		Users:   NewOrderedCounter[string](),
		Media:   NewOrderedCounter[string](),
		Replies: NewOrderedCounter[int64](),
	}
	for _, m := range messages {
		stats.Total++
		if stats.First.IsZero() || m.Date.Before(stats.First) {
			stats.First = m.Date
		}
		if m.Date.After(stats.Last) {
			stats.Last = m.Date
		}
		stats.Users.Add(m.Sender())
		if m.MediaType != "" {
			stats.Media.Add(m.MediaType)
		}
		if m.IsReply() {
			stats.Replies.Add(m.ReplyTo)
		}
	}
	return stats
}
