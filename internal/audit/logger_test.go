package audit

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/davidahmann/gatelog/internal/crypto"
	"github.com/davidahmann/gatelog/pkg/types"
)

func testClock() func() time.Time {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func testEntry(i int) Entry {
	return Entry{
		EventType: types.EventPolicyEvaluation,
		Actor:     types.Actor{ID: "dev-1", Type: types.ActorUser},
		Action:    "code.commit",
		Resource:  &types.Resource{Type: "repository", ID: "svc-api", Name: fmt.Sprintf("commit-%d", i)},
		Result:    types.ResultSuccess,
	}
}

func seedChain(t *testing.T, store Store, count int) *Logger {
	t.Helper()
	logger, err := NewLogger(store, WithClock(testClock()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	for i := 0; i < count; i++ {
		if _, err := logger.Append(testEntry(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	return logger
}

func TestAppendChainsEvents(t *testing.T) {
	store := NewInMemoryStore()
	logger := seedChain(t, store, 3)

	events, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	if events[0].PreviousHash != "" {
		t.Fatalf("first event previous_hash must be empty, got %q", events[0].PreviousHash)
	}
	for i, event := range events {
		if event.Sequence != int64(i) {
			t.Fatalf("event %d sequence = %d", i, event.Sequence)
		}
		recomputed, err := ComputeHash(event)
		if err != nil {
			t.Fatalf("recompute %d: %v", i, err)
		}
		if event.Hash != recomputed {
			t.Fatalf("event %d hash mismatch", i)
		}
		if i > 0 && event.PreviousHash != events[i-1].Hash {
			t.Fatalf("event %d not linked to predecessor", i)
		}
	}

	if logger.TailHash() != events[2].Hash {
		t.Fatalf("tail hash does not match last event")
	}
	if logger.Sequence() != 3 {
		t.Fatalf("sequence = %d, want 3", logger.Sequence())
	}
}

func TestAppendRedactsBeforeHashing(t *testing.T) {
	store := NewInMemoryStore()
	logger, err := NewLogger(store, WithClock(testClock()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	entry := testEntry(0)
	entry.Context.Input = map[string]any{
		"api_token": "supersecretvalue",
		"query":     "select 1",
		"nested": map[string]any{
			"db_password": "hunter2",
			"host":        "localhost",
		},
	}

	event, err := logger.Append(entry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if event.Context.Input["api_token"] != DefaultRedactionMarker {
		t.Fatalf("api_token not redacted: %v", event.Context.Input["api_token"])
	}
	nested, ok := event.Context.Input["nested"].(map[string]any)
	if !ok || nested["db_password"] != DefaultRedactionMarker {
		t.Fatalf("nested password not redacted: %v", event.Context.Input["nested"])
	}
	if nested["host"] != "localhost" {
		t.Fatalf("non-sensitive value altered: %v", nested["host"])
	}

	// The hash input must never contain the raw secret.
	canonical, err := crypto.Canonicalize(canonicalBody(event))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if bytes.Contains(canonical, []byte("supersecretvalue")) || bytes.Contains(canonical, []byte("hunter2")) {
		t.Fatalf("secret leaked into hash input")
	}

	// The stored hash covers the redacted form, so restoring the secret
	// after the fact is detectable.
	tampered := event
	tampered.Context.Input = map[string]any{"api_token": "supersecretvalue", "query": "select 1"}
	recomputed, err := ComputeHash(tampered)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if recomputed == event.Hash {
		t.Fatalf("hash does not cover redacted context")
	}
}

func TestAppendRejectsInvalidEntries(t *testing.T) {
	logger, err := NewLogger(NewInMemoryStore())
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	entry := testEntry(0)
	entry.EventType = ""
	if _, err := logger.Append(entry); !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}

	entry = testEntry(0)
	entry.Result = "partial"
	if _, err := logger.Append(entry); !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
}

type failingStore struct {
	*InMemoryStore
	failures int
	attempts int
}

func (s *failingStore) Append(event types.AuditEvent) error {
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("disk full")
	}
	return s.InMemoryStore.Append(event)
}

func TestAppendFailureLeavesTailUnchanged(t *testing.T) {
	store := &failingStore{InMemoryStore: NewInMemoryStore(), failures: appendAttempts}
	logger, err := NewLogger(store, WithClock(testClock()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	if _, err := logger.Append(testEntry(0)); !errors.Is(err, ErrAppendFailed) {
		t.Fatalf("expected ErrAppendFailed, got %v", err)
	}
	if store.attempts != appendAttempts {
		t.Fatalf("attempts = %d, want %d", store.attempts, appendAttempts)
	}
	if logger.TailHash() != "" || logger.Sequence() != 0 {
		t.Fatalf("tail advanced after failed append: tail=%q seq=%d", logger.TailHash(), logger.Sequence())
	}

	// A later append starts the chain normally.
	store.failures = 0
	event, err := logger.Append(testEntry(1))
	if err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if event.Sequence != 0 || event.PreviousHash != "" {
		t.Fatalf("recovered append got seq=%d prev=%q", event.Sequence, event.PreviousHash)
	}
}

func TestAppendRetriesTransientFailure(t *testing.T) {
	store := &failingStore{InMemoryStore: NewInMemoryStore(), failures: appendAttempts - 1}
	logger, err := NewLogger(store, WithClock(testClock()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	if _, err := logger.Append(testEntry(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if store.attempts != appendAttempts {
		t.Fatalf("attempts = %d, want %d", store.attempts, appendAttempts)
	}
	if n, _ := store.Len(); n != 1 {
		t.Fatalf("stored events = %d, want 1", n)
	}
}

func TestNewLoggerRecoversTail(t *testing.T) {
	store := NewInMemoryStore()
	first := seedChain(t, store, 2)

	restarted, err := NewLogger(store, WithClock(testClock()))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if restarted.TailHash() != first.TailHash() {
		t.Fatalf("restarted logger lost the tail")
	}
	if restarted.Sequence() != 2 {
		t.Fatalf("restarted sequence = %d, want 2", restarted.Sequence())
	}

	event, err := restarted.Append(testEntry(2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.Sequence != 2 || event.PreviousHash != first.TailHash() {
		t.Fatalf("restart broke the chain: seq=%d prev=%q", event.Sequence, event.PreviousHash)
	}
}

func TestConcurrentAppendsKeepChainIntact(t *testing.T) {
	store := NewInMemoryStore()
	logger, err := NewLogger(store)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := logger.Append(testEntry(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := store.Len(); n != workers {
		t.Fatalf("stored events = %d, want %d", n, workers)
	}

	report, err := VerifyIntegrity(store)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Valid {
		t.Fatalf("concurrent appends broke the chain: %s", report.Message)
	}

	events, _ := store.List()
	seen := map[string]bool{}
	for _, event := range events {
		if seen[event.PreviousHash] {
			t.Fatalf("duplicate previous_hash %q", event.PreviousHash)
		}
		seen[event.PreviousHash] = true
	}
}
