package audit

import (
	"testing"

	"github.com/davidahmann/gatelog/pkg/types"
)

func TestInMemoryStoreBasics(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.Last(); ok {
		t.Fatalf("empty store has a last event")
	}
	if n, err := store.Len(); err != nil || n != 0 {
		t.Fatalf("len: n=%d err=%v", n, err)
	}

	for i := 0; i < 3; i++ {
		event := types.AuditEvent{ID: string(rune('a' + i)), Sequence: int64(i)}
		if err := store.Append(event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if got, ok := store.Get("b"); !ok || got.Sequence != 1 {
		t.Fatalf("get mismatch: ok=%v got=%+v", ok, got)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatalf("expected miss")
	}

	last, ok := store.Last()
	if !ok || last.Sequence != 2 {
		t.Fatalf("last mismatch: ok=%v got=%+v", ok, last)
	}

	events, err := store.List()
	if err != nil || len(events) != 3 {
		t.Fatalf("list: err=%v len=%d", err, len(events))
	}
	for i, event := range events {
		if event.Sequence != int64(i) {
			t.Fatalf("list out of order at %d", i)
		}
	}

	// List hands out a copy.
	events[0].Action = "mutated"
	fresh, _ := store.List()
	if fresh[0].Action == "mutated" {
		t.Fatalf("list aliases internal storage")
	}
}
