package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/gatelog/pkg/types"
)

var (
	ErrMissingEventType = errors.New("missing event type")
	ErrInvalidResult    = errors.New("invalid event result")
	ErrAppendFailed     = errors.New("audit append failed")
)

const (
	appendAttempts = 3
	appendBackoff  = 25 * time.Millisecond
)

// Logger owns the chain tail. Every append runs under its mutex so no two
// events are ever hashed against the same predecessor.
type Logger struct {
	mu     sync.Mutex
	store  Store
	marker string
	clock  func() time.Time
	newID  func() string
	log    *zap.Logger

	tail string
	seq  int64
}

type LoggerOption func(*Logger)

// WithClock overrides the append-time clock. Timestamps are always assigned
// by the logger, never by callers, so records cannot be backdated.
func WithClock(clock func() time.Time) LoggerOption {
	return func(l *Logger) { l.clock = clock }
}

func WithIDFunc(newID func() string) LoggerOption {
	return func(l *Logger) { l.newID = newID }
}

func WithRedactionMarker(marker string) LoggerOption {
	return func(l *Logger) { l.marker = marker }
}

func WithZap(log *zap.Logger) LoggerOption {
	return func(l *Logger) { l.log = log }
}

// NewLogger builds a logger over store, recovering the tail hash and
// sequence from the last persisted event so a restart continues the chain.
func NewLogger(store Store, opts ...LoggerOption) (*Logger, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}

	l := &Logger{
		store:  store,
		marker: DefaultRedactionMarker,
		clock:  time.Now,
		newID:  uuid.NewString,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if last, ok := store.Last(); ok {
		l.tail = last.Hash
		l.seq = last.Sequence + 1
	}
	return l, nil
}

// Append assigns id, sequence, timestamp and previous hash, redacts
// sensitive values, hashes the canonical body and persists the event. The
// tail advances only after the store accepts the event; on failure the
// caller must treat the gated operation as unaudited and abort it.
func (l *Logger) Append(entry Entry) (types.AuditEvent, error) {
	if entry.EventType == "" {
		return types.AuditEvent{}, ErrMissingEventType
	}
	switch entry.Result {
	case types.ResultSuccess, types.ResultFailure, types.ResultBlocked:
	default:
		return types.AuditEvent{}, fmt.Errorf("%w: %q", ErrInvalidResult, entry.Result)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event := types.AuditEvent{
		ID:        l.newID(),
		Sequence:  l.seq,
		Timestamp: l.clock().UTC().Format(time.RFC3339Nano),
		EventType: entry.EventType,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Context: types.ContextSummary{
			Input:    redactMap(entry.Context.Input, l.marker),
			Output:   redactMap(entry.Context.Output, l.marker),
			Metadata: redactMap(entry.Context.Metadata, l.marker),
		},
		Result:       entry.Result,
		Compliance:   entry.Compliance,
		PreviousHash: l.tail,
	}

	hash, err := ComputeHash(event)
	if err != nil {
		return types.AuditEvent{}, fmt.Errorf("hash audit event: %w", err)
	}
	event.Hash = hash

	if err := l.appendWithRetry(event); err != nil {
		l.log.Error("audit append failed",
			zap.String("event_type", event.EventType),
			zap.Int64("sequence", event.Sequence),
			zap.Error(err))
		return types.AuditEvent{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	l.tail = event.Hash
	l.seq++

	l.log.Debug("audit event appended",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int64("sequence", event.Sequence),
		zap.String("result", string(event.Result)))
	return event, nil
}

func (l *Logger) appendWithRetry(event types.AuditEvent) error {
	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(appendBackoff << (attempt - 1))
		}
		if err = l.store.Append(event); err == nil {
			return nil
		}
	}
	return err
}

// TailHash returns the current chain tail ("" for an empty chain).
func (l *Logger) TailHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}

// Sequence returns the number of events appended so far.
func (l *Logger) Sequence() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
