package internal

import "testing"

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		max       int
		wantSizes []int
	}{
		{"empty", 0, 3, nil},
		{"fits", 3, 3, []int{3}},
		{"under", 2, 200, []int{2}},
		{"exact multiple", 6, 3, []int{3, 3}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"single each", 3, 1, []int{1, 1, 1}},
		{"no bound", 5, 0, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := CreateTestThread(1, 2, tt.n)
			batches := PlanBatches(msgs, tt.max)

			if len(batches) != len(tt.wantSizes) {
				t.Fatalf("PlanBatches() returned %d batches, want %d", len(batches), len(tt.wantSizes))
			}

			var flat []*Message
			for i, b := range batches {
				if len(b.Messages) != tt.wantSizes[i] {
					t.Errorf("batch %d size = %d, want %d", i+1, len(b.Messages), tt.wantSizes[i])
				}
				if b.Index != i+1 || b.Total != len(batches) {
					t.Errorf("batch %d position = %d/%d", i+1, b.Index, b.Total)
				}
				flat = append(flat, b.Messages...)
			}

			if len(flat) != len(msgs) {
				t.Fatalf("concatenated batches have %d messages, want %d", len(flat), len(msgs))
			}
			for i := range msgs {
				if flat[i] != msgs[i] {
					t.Errorf("message %d out of order after batching", i)
				}
			}
		})
	}
}

func TestBatchCount(t *testing.T) {
	tests := []struct{ n, max, want int }{
		{0, 5, 0},
		{5, 5, 1},
		{6, 5, 2},
		{401, 200, 3},
		{10, -1, 1},
	}
	for _, tt := range tests {
		if got := BatchCount(tt.n, tt.max); got != tt.want {
			t.Errorf("BatchCount(%d, %d) = %d, want %d", tt.n, tt.max, got, tt.want)
		}
	}
}

func TestPlanBatchesDoesNotAlias(t *testing.T) {
	msgs := CreateTestThread(1, 2, 4)
	batches := PlanBatches(msgs, 2)
	batches[0].Messages = append(batches[0].Messages, CreateTestMessage(99, 1, "x", "extra", 0))
	if batches[1].Messages[0] != msgs[2] {
		t.Error("appending to a batch overwrote the next batch")
	}
}
