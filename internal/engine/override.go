package engine

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/pkg/types"
)

// Override lifecycle: Proposed -> {Approved, Rejected}, both terminal. A
// decided request is never mutated; a second attempt is a new request with
// its own audit trail.
const (
	StateProposed = "proposed"
	StateApproved = "approved"
	StateRejected = "rejected"
)

// DefaultMinJustification is the approval threshold when the config does not
// set one. It is a configuration default, not a business rule.
const DefaultMinJustification = 20

// Overrider decides override requests for policy violations. Critical
// violations are rejected deterministically, without consulting anyone.
type Overrider struct {
	auditor          *audit.Logger
	minJustification int
	newID            func() string
	log              *zap.Logger
}

func NewOverrider(auditor *audit.Logger, minJustification int, log *zap.Logger) (*Overrider, error) {
	if auditor == nil {
		return nil, fmt.Errorf("missing audit logger")
	}
	if minJustification <= 0 {
		minJustification = DefaultMinJustification
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Overrider{
		auditor:          auditor,
		minJustification: minJustification,
		newID:            uuid.NewString,
		log:              log,
	}, nil
}

// RequestOverride decides a single override request and records the decision
// whether approved or rejected. Rejection is a normal outcome, never an
// error: misuse must be recorded, not thrown.
func (o *Overrider) RequestOverride(op types.OperationContext, violation types.Violation, justification, approver string) (types.OverrideResult, error) {
	result := types.OverrideResult{
		RequestID:     o.newID(),
		State:         StateProposed,
		Justification: justification,
		Approver:      approver,
	}

	switch {
	case violation.Severity == types.SeverityCritical:
		result.State = StateRejected
		result.Reason = "critical violations can never be overridden"
	case utf8.RuneCountInString(justification) >= o.minJustification:
		result.State = StateApproved
		result.Approved = true
	default:
		result.State = StateRejected
		result.Reason = fmt.Sprintf("justification too short: %d < %d characters", utf8.RuneCountInString(justification), o.minJustification)
	}

	outcome := types.ResultFailure
	if result.Approved {
		outcome = types.ResultSuccess
	}

	approved := result.Approved
	event, err := o.auditor.Append(audit.Entry{
		EventType: types.EventPolicyOverride,
		Actor:     op.Actor,
		Action:    "policy.override",
		Resource:  op.Resource,
		Context: types.ContextSummary{
			Input: map[string]any{
				"operation":     op.Operation,
				"request_id":    result.RequestID,
				"rule_id":       violation.RuleID,
				"severity":      string(violation.Severity),
				"justification": justification,
				"approver":      approver,
			},
			Output: map[string]any{
				"state":  result.State,
				"reason": result.Reason,
			},
		},
		Result: outcome,
		Compliance: types.EventCompliance{
			Violations: []types.Violation{violation},
			Approved:   &approved,
		},
	})
	if err != nil {
		return types.OverrideResult{}, fmt.Errorf("audit override: %w", err)
	}
	result.EventID = event.ID

	o.log.Info("override decision",
		zap.String("request_id", result.RequestID),
		zap.String("rule_id", violation.RuleID),
		zap.String("state", result.State),
		zap.String("event_id", event.ID))
	return result, nil
}
