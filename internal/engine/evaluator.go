package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/policy"
	"github.com/davidahmann/gatelog/pkg/types"
)

// Evaluator runs every relevant rule against an operation context and writes
// exactly one audit event per evaluation, whatever the outcome.
type Evaluator struct {
	registry *policy.Registry
	auditor  *audit.Logger
	log      *zap.Logger
}

func NewEvaluator(registry *policy.Registry, auditor *audit.Logger, log *zap.Logger) (*Evaluator, error) {
	if registry == nil {
		return nil, fmt.Errorf("missing registry")
	}
	if auditor == nil {
		return nil, fmt.Errorf("missing audit logger")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{registry: registry, auditor: auditor, log: log}, nil
}

type ruleOutcome struct {
	result     types.RuleResult
	violations []types.Violation
}

// Evaluate checks op against every enabled rule relevant to its operation.
// Predicates run concurrently; they are read-only by contract. A predicate
// panic is a failed check, never a silent pass. The operation is blocked iff
// at least one violation is critical. If the audit append fails the
// evaluation is unusable and an error is returned: an unaudited decision
// must not be acted on.
func (e *Evaluator) Evaluate(ctx context.Context, op types.OperationContext) (types.EvaluationResult, error) {
	rules := e.registry.Relevant(op.Operation)

	outcomes := make([]ruleOutcome, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule policy.Rule) {
			defer wg.Done()
			outcomes[i] = runRule(rule, op)
		}(i, rule)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return e.failClosed(op, fmt.Sprintf("evaluation aborted: %v", ctx.Err()))
	}

	result := types.EvaluationResult{Passed: true}
	for _, outcome := range outcomes {
		result.RuleResults = append(result.RuleResults, outcome.result)
		result.Violations = append(result.Violations, outcome.violations...)
		if !outcome.result.Passed {
			result.Passed = false
		}
	}
	for _, v := range result.Violations {
		if v.Severity == types.SeverityCritical {
			result.Blocked = true
			break
		}
	}
	result.Summary = summarize(len(rules), result)

	event, err := e.auditor.Append(audit.Entry{
		EventType: types.EventPolicyEvaluation,
		Actor:     op.Actor,
		Action:    op.Operation,
		Resource:  op.Resource,
		Context:   evaluationContext(op, result),
		Result:    evaluationOutcome(result),
		Compliance: types.EventCompliance{
			Violations: result.Violations,
		},
	})
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("audit evaluation: %w", err)
	}
	result.EventID = event.ID

	e.log.Info("policy evaluation",
		zap.String("operation", op.Operation),
		zap.String("actor", op.Actor.ID),
		zap.Bool("blocked", result.Blocked),
		zap.Int("violations", len(result.Violations)),
		zap.String("event_id", event.ID))
	return result, nil
}

// failClosed records a timed-out or cancelled evaluation as a failure with a
// synthetic high-severity violation. The operation must not proceed.
func (e *Evaluator) failClosed(op types.OperationContext, reason string) (types.EvaluationResult, error) {
	result := types.EvaluationResult{
		Passed:  false,
		Blocked: true,
		Violations: []types.Violation{{
			RuleID:   "evaluator",
			Severity: types.SeverityHigh,
			Message:  reason,
		}},
		Summary: reason,
	}

	event, err := e.auditor.Append(audit.Entry{
		EventType:  types.EventPolicyEvaluation,
		Actor:      op.Actor,
		Action:     op.Operation,
		Resource:   op.Resource,
		Context:    evaluationContext(op, result),
		Result:     types.ResultFailure,
		Compliance: types.EventCompliance{Violations: result.Violations},
	})
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("audit evaluation: %w", err)
	}
	result.EventID = event.ID
	return result, nil
}

// runRule executes one predicate and stamps rule identity onto whatever it
// reports. A recovered panic produces a synthetic high-severity violation.
func runRule(rule policy.Rule, op types.OperationContext) (outcome ruleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = ruleOutcome{
				result: types.RuleResult{RuleID: rule.ID, Passed: false, Error: fmt.Sprintf("%v", r)},
				violations: []types.Violation{{
					RuleID:   rule.ID,
					Severity: types.SeverityHigh,
					Message:  fmt.Sprintf("rule check failed: %v", r),
					Hint:     rule.Guidance,
				}},
			}
		}
	}()

	checked := rule.Check(op)
	violations := make([]types.Violation, 0, len(checked.Violations))
	for _, v := range checked.Violations {
		if v.RuleID == "" {
			v.RuleID = rule.ID
		}
		if v.Severity == "" {
			v.Severity = rule.Severity
		}
		if v.Hint == "" {
			v.Hint = rule.Guidance
		}
		violations = append(violations, v)
	}
	return ruleOutcome{
		result:     types.RuleResult{RuleID: rule.ID, Passed: checked.Passed && len(violations) == 0},
		violations: violations,
	}
}

func evaluationOutcome(result types.EvaluationResult) types.EventResult {
	switch {
	case result.Blocked:
		return types.ResultBlocked
	case hasCheckError(result.RuleResults):
		return types.ResultFailure
	default:
		return types.ResultSuccess
	}
}

func hasCheckError(results []types.RuleResult) bool {
	for _, r := range results {
		if r.Error != "" {
			return true
		}
	}
	return false
}

func summarize(ruleCount int, result types.EvaluationResult) string {
	switch {
	case result.Blocked:
		return fmt.Sprintf("blocked: %d violation(s) across %d rule(s), at least one critical", len(result.Violations), ruleCount)
	case len(result.Violations) > 0:
		return fmt.Sprintf("warned: %d violation(s) across %d rule(s)", len(result.Violations), ruleCount)
	default:
		return fmt.Sprintf("passed: %d rule(s) checked", ruleCount)
	}
}

func evaluationContext(op types.OperationContext, result types.EvaluationResult) types.ContextSummary {
	input := map[string]any{"operation": op.Operation}
	if len(op.Configuration) > 0 {
		config := make(map[string]any, len(op.Configuration))
		for k, v := range op.Configuration {
			config[k] = v
		}
		input["configuration"] = config
	}
	if op.Deployment != nil {
		input["deployment"] = map[string]any{
			"target":      op.Deployment.Target,
			"environment": op.Deployment.Environment,
			"version":     op.Deployment.Version,
		}
	}
	return types.ContextSummary{
		Input: input,
		Output: map[string]any{
			"passed":  result.Passed,
			"blocked": result.Blocked,
			"summary": result.Summary,
		},
		Metadata: op.Metadata,
	}
}
