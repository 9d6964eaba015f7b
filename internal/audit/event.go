package audit

import (
	"github.com/davidahmann/gatelog/internal/crypto"
	"github.com/davidahmann/gatelog/pkg/types"
)

// Entry is the caller-supplied portion of an audit event. The logger assigns
// id, sequence, timestamp, previous hash and hash at append time.
type Entry struct {
	EventType  string
	Actor      types.Actor
	Action     string
	Resource   *types.Resource
	Context    types.ContextSummary
	Result     types.EventResult
	Compliance types.EventCompliance
}

// canonicalBody is the hash input: every event field except Hash itself,
// PreviousHash included. Field names follow the wire form.
func canonicalBody(event types.AuditEvent) map[string]any {
	body := map[string]any{
		"id":         event.ID,
		"sequence":   event.Sequence,
		"timestamp":  event.Timestamp,
		"event_type": event.EventType,
		"actor": map[string]any{
			"id":    event.Actor.ID,
			"type":  string(event.Actor.Type),
			"email": event.Actor.Email,
			"ip":    event.Actor.IP,
		},
		"action": event.Action,
		"context": map[string]any{
			"input":    event.Context.Input,
			"output":   event.Context.Output,
			"metadata": event.Context.Metadata,
		},
		"result":        string(event.Result),
		"compliance":    complianceBody(event.Compliance),
		"previous_hash": event.PreviousHash,
	}
	if event.Resource != nil {
		body["resource"] = map[string]any{
			"type": event.Resource.Type,
			"id":   event.Resource.ID,
			"name": event.Resource.Name,
		}
	}
	return body
}

func complianceBody(c types.EventCompliance) map[string]any {
	violations := make([]any, 0, len(c.Violations))
	for _, v := range c.Violations {
		violations = append(violations, map[string]any{
			"rule_id":  v.RuleID,
			"severity": string(v.Severity),
			"message":  v.Message,
			"file":     v.File,
			"line":     v.Line,
			"hint":     v.Hint,
		})
	}
	body := map[string]any{"violations": violations}
	if c.Approved != nil {
		body["approved"] = *c.Approved
	}
	return body
}

// ComputeHash recomputes the content hash of an event from its canonical
// body. Used by the logger at append time and by integrity verification.
func ComputeHash(event types.AuditEvent) (string, error) {
	canonical, err := crypto.Canonicalize(canonicalBody(event))
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
