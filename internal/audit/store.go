package audit

import (
	"time"

	"github.com/davidahmann/gatelog/pkg/types"
)

// Store persists audit events in append order. Implementations must never
// reorder or rewrite stored events; the chain invariant depends on it.
type Store interface {
	Append(event types.AuditEvent) error
	Get(id string) (types.AuditEvent, bool)

	// List returns all events in insertion order.
	List() ([]types.AuditEvent, error)

	// Query returns matching events most-recent-first.
	Query(filter Filter) ([]types.AuditEvent, error)

	// Last returns the most recently appended event.
	Last() (types.AuditEvent, bool)

	Len() (int, error)
}

type Filter struct {
	EventTypes    []string
	ActorID       string
	ResourceType  string
	ResourceID    string
	From          time.Time
	To            time.Time
	Result        types.EventResult
	HasViolations *bool
	Limit         int
}

// FilterBuilder assembles a Filter fluently; the zero builder matches
// everything.
type FilterBuilder struct {
	filter Filter
}

func NewFilter() *FilterBuilder {
	return &FilterBuilder{}
}

func (b *FilterBuilder) EventTypes(eventTypes ...string) *FilterBuilder {
	b.filter.EventTypes = eventTypes
	return b
}

func (b *FilterBuilder) Actor(actorID string) *FilterBuilder {
	b.filter.ActorID = actorID
	return b
}

func (b *FilterBuilder) Resource(resourceType, resourceID string) *FilterBuilder {
	b.filter.ResourceType = resourceType
	b.filter.ResourceID = resourceID
	return b
}

func (b *FilterBuilder) Between(from, to time.Time) *FilterBuilder {
	b.filter.From = from
	b.filter.To = to
	return b
}

func (b *FilterBuilder) Result(result types.EventResult) *FilterBuilder {
	b.filter.Result = result
	return b
}

func (b *FilterBuilder) WithViolations(has bool) *FilterBuilder {
	b.filter.HasViolations = &has
	return b
}

func (b *FilterBuilder) Limit(limit int) *FilterBuilder {
	b.filter.Limit = limit
	return b
}

func (b *FilterBuilder) Build() Filter {
	return b.filter
}

// Matches reports whether event satisfies every constraint in the filter.
// Limit is applied by the store, not here.
func (f Filter) Matches(event types.AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, eventType := range f.EventTypes {
			if event.EventType == eventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && event.Actor.ID != f.ActorID {
		return false
	}
	if f.ResourceType != "" {
		if event.Resource == nil || event.Resource.Type != f.ResourceType {
			return false
		}
	}
	if f.ResourceID != "" {
		if event.Resource == nil || event.Resource.ID != f.ResourceID {
			return false
		}
	}
	if f.Result != "" && event.Result != f.Result {
		return false
	}
	if f.HasViolations != nil {
		if *f.HasViolations != (len(event.Compliance.Violations) > 0) {
			return false
		}
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}
