package internal

// BatchCount returns how many batches a thread of n messages needs.
func BatchCount(n, maxBatchSize int) int {
	if n == 0 {
		return 0
	}
	if maxBatchSize <= 0 || n <= maxBatchSize {
		return 1
	}
	return (n + maxBatchSize - 1) / maxBatchSize
}

// PlanBatches splits a thread into contiguous batches of at most maxBatchSize
// messages. Only the last batch may be shorter. Concatenating the batches
// yields the input unchanged.
func PlanBatches(messages []*Message, maxBatchSize int) []Batch {
	total := BatchCount(len(messages), maxBatchSize)
	if total == 0 {
		return nil
	}
	if total == 1 {
		return []Batch{{Index: 1, Total: 1, Messages: messages}}
	}

	batches := make([]Batch, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxBatchSize
		end := start + maxBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		batches = append(batches, Batch{
			Index:    i + 1,
			Total:    total,
			Messages: messages[start:end:end],
		})
	}
	return batches
}
