package internal

import "sort"

// ThreadIDFor returns the thread a message belongs to given its reply target.
// Replies join the thread of the message they reply to; everything else is top-level.
func ThreadIDFor(replyTo int64) int64 {
	if replyTo > 0 {
		return replyTo
	}
	return TopLevelThreadID
}

// ClassifyThreads groups time-ordered messages by their stored thread id.
// Threads are returned in first-seen order and keep their input message order.
func ClassifyThreads(messages []*Message) []*Thread {
	index := make(map[int64]*Thread)
	var threads []*Thread

	for _, msg := range messages {
		id := msg.ThreadID
		if id == 0 {
			// Not assigned by a store.
			id = ThreadIDFor(msg.ReplyTo)
		}
		th, ok := index[id]
		if !ok {
			th = &Thread{ID: id}
			index[id] = th
			threads = append(threads, th)
		}
		th.Messages = append(th.Messages, msg)
	}

	return threads
}

// SelectThreads keeps threads with at least minMessages messages, largest first.
// Equal sizes keep their first-seen order.
func SelectThreads(threads []*Thread, minMessages int) []*Thread {
	if minMessages < 1 {
		minMessages = 1
	}
	var selected []*Thread
	for _, th := range threads {
		if len(th.Messages) >= minMessages {
			selected = append(selected, th)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return len(selected[i].Messages) > len(selected[j].Messages)
	})
	return selected
}
