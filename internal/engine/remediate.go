package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/policy"
	"github.com/davidahmann/gatelog/pkg/types"
)

// Remediator applies rule-declared auto-fixes to violations, best effort and
// independently per violation. Every attempt, successful or not, is audited;
// violations whose rule has no auto-fix are skipped without an audit event.
type Remediator struct {
	registry *policy.Registry
	auditor  *audit.Logger
	log      *zap.Logger
}

func NewRemediator(registry *policy.Registry, auditor *audit.Logger, log *zap.Logger) (*Remediator, error) {
	if registry == nil {
		return nil, fmt.Errorf("missing registry")
	}
	if auditor == nil {
		return nil, fmt.Errorf("missing audit logger")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remediator{registry: registry, auditor: auditor, log: log}, nil
}

func (r *Remediator) Remediate(op types.OperationContext, violations []types.Violation) (types.RemediationResult, error) {
	result := types.RemediationResult{}
	current := op

	for _, violation := range violations {
		attempt := types.RemediationAttempt{RuleID: violation.RuleID, Target: violation}

		rule, ok := r.registry.Get(violation.RuleID)
		if !ok {
			attempt.Message = "unknown rule"
			result.Skipped++
			result.Attempts = append(result.Attempts, attempt)
			continue
		}
		if !rule.CanAutoFix || rule.Fix == nil {
			attempt.Message = "no auto-fix available"
			result.Skipped++
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		fixed := runFix(rule, current)
		attempt.Fixed = fixed.Fixed
		attempt.Message = fixed.Message
		if fixed.Fixed && fixed.Code != nil {
			// Later fixes operate on the repaired snapshot.
			current.Code = fixed.Code
		}

		outcome := types.ResultFailure
		if fixed.Fixed {
			outcome = types.ResultSuccess
			result.Fixed++
		} else {
			result.Failed++
		}

		event, err := r.auditor.Append(audit.Entry{
			EventType: types.EventPolicyRemediation,
			Actor:     op.Actor,
			Action:    "policy.remediate",
			Resource:  op.Resource,
			Context: types.ContextSummary{
				Input: map[string]any{
					"operation": op.Operation,
					"rule_id":   violation.RuleID,
					"message":   violation.Message,
				},
				Output: map[string]any{
					"fixed":   fixed.Fixed,
					"message": fixed.Message,
				},
			},
			Result:     outcome,
			Compliance: types.EventCompliance{Violations: []types.Violation{violation}},
		})
		if err != nil {
			return types.RemediationResult{}, fmt.Errorf("audit remediation: %w", err)
		}
		attempt.EventID = event.ID
		result.Attempts = append(result.Attempts, attempt)

		r.log.Info("remediation attempt",
			zap.String("rule_id", violation.RuleID),
			zap.Bool("fixed", fixed.Fixed),
			zap.String("event_id", event.ID))
	}

	return result, nil
}

func runFix(rule policy.Rule, op types.OperationContext) (out policy.FixResult) {
	defer func() {
		if r := recover(); r != nil {
			out = policy.FixResult{Fixed: false, Message: fmt.Sprintf("fix failed: %v", r)}
		}
	}()
	return rule.Fix(op)
}
