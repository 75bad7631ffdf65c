package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemory_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	var m Memory
	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		if err := m.Record(ctx, Entry{ID: uuid.New(), Voice: "Rachel", Message: msg}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"three", "two", "one"}},
		{2, []string{"three", "two"}},
		{10, []string{"three", "two", "one"}},
	}
	for _, tc := range tests {
		got, err := m.Recent(ctx, tc.limit)
		if err != nil {
			t.Fatalf("Recent(%d): %v", tc.limit, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("Recent(%d) returned %d entries, want %d", tc.limit, len(got), len(tc.want))
		}
		for i, e := range got {
			if e.Message != tc.want[i] {
				t.Errorf("Recent(%d)[%d] = %q, want %q", tc.limit, i, e.Message, tc.want[i])
			}
		}
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	var n Nop
	if err := n.Record(context.Background(), Entry{Message: "ignored"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := n.Recent(context.Background(), 5)
	if err != nil || len(got) != 0 {
		t.Errorf("Recent = %v, %v; want empty", got, err)
	}
}
