package types

type EventResult string

const (
	ResultSuccess EventResult = "success"
	ResultFailure EventResult = "failure"
	ResultBlocked EventResult = "blocked"
)

const (
	EventPolicyEvaluation  = "policy.evaluation"
	EventPolicyOverride    = "policy.override"
	EventPolicyRemediation = "policy.remediation"
)

type ContextSummary struct {
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type EventCompliance struct {
	Violations []Violation `json:"violations,omitempty"`
	Approved   *bool       `json:"approved,omitempty"`
}

// AuditEvent is one immutable, hash-linked record. Hash covers the canonical
// form of every field except Hash itself, PreviousHash included.
type AuditEvent struct {
	ID           string          `json:"id"`
	Sequence     int64           `json:"sequence"`
	Timestamp    string          `json:"timestamp"`
	EventType    string          `json:"event_type"`
	Actor        Actor           `json:"actor"`
	Action       string          `json:"action"`
	Resource     *Resource       `json:"resource,omitempty"`
	Context      ContextSummary  `json:"context"`
	Result       EventResult     `json:"result"`
	Compliance   EventCompliance `json:"compliance"`
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previous_hash"`
}

type IntegrityReport struct {
	Valid       bool   `json:"valid"`
	TotalEvents int    `json:"total_events"`
	BrokenAt    *int   `json:"broken_at,omitempty"`
	Message     string `json:"message"`
}
