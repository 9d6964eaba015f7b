package engine

import (
	"strings"
	"testing"

	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/policy"
	"github.com/davidahmann/gatelog/pkg/types"
)

func whitespaceRule(t *testing.T) policy.Rule {
	t.Helper()
	kind, ok := policy.LookupKind("no-trailing-whitespace")
	if !ok {
		t.Fatalf("missing built-in check")
	}
	check, err := kind.New(nil)
	if err != nil {
		t.Fatalf("build check: %v", err)
	}
	fix, err := kind.NewFix(nil)
	if err != nil {
		t.Fatalf("build fix: %v", err)
	}
	return policy.Rule{
		ID:          "quality-002",
		Name:        "No trailing whitespace",
		Description: "Source lines must not end with spaces or tabs.",
		Rationale:   "Trailing whitespace produces noisy diffs in review.",
		Category:    "quality",
		Severity:    types.SeverityLow,
		Mode:        policy.ModeWarn,
		Check:       check,
		CanAutoFix:  true,
		Fix:         fix,
	}
}

func newTestRemediator(t *testing.T, rules ...policy.Rule) (*Remediator, *audit.InMemoryStore) {
	t.Helper()
	registry := policy.NewRegistry()
	for _, rule := range rules {
		if err := registry.Register(rule); err != nil {
			t.Fatalf("register %s: %v", rule.ID, err)
		}
	}
	store := audit.NewInMemoryStore()
	logger, err := audit.NewLogger(store)
	if err != nil {
		t.Fatalf("new audit logger: %v", err)
	}
	remediator, err := NewRemediator(registry, logger, nil)
	if err != nil {
		t.Fatalf("new remediator: %v", err)
	}
	return remediator, store
}

func TestRemediateFixesAndSkips(t *testing.T) {
	remediator, store := newTestRemediator(t, whitespaceRule(t), secretsRule(t))

	op := commitContext("package client   \n\nfunc main() {}\t")
	violations := []types.Violation{
		{RuleID: "quality-002", Severity: types.SeverityLow, Message: "trailing whitespace", File: "internal/client.go", Line: 1},
		{RuleID: "security-001", Severity: types.SeverityCritical, Message: "hardcoded secret"},
	}

	result, err := remediator.Remediate(op, violations)
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}

	if result.Fixed != 1 || result.Failed != 0 || result.Skipped != 1 {
		t.Fatalf("counts mismatch: %+v", result)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(result.Attempts))
	}
	if !result.Attempts[0].Fixed || result.Attempts[0].EventID == "" {
		t.Fatalf("fix attempt not recorded: %+v", result.Attempts[0])
	}
	if result.Attempts[1].Fixed || result.Attempts[1].EventID != "" {
		t.Fatalf("skip should not be audited: %+v", result.Attempts[1])
	}

	// Only the real attempt reaches the audit log.
	if n, _ := store.Len(); n != 1 {
		t.Fatalf("expected 1 audit event, got %d", n)
	}
	event, _ := store.Last()
	if event.EventType != types.EventPolicyRemediation || event.Result != types.ResultSuccess {
		t.Fatalf("audit event mismatch: %+v", event)
	}
}

func TestRemediateFailureDoesNotAbortOthers(t *testing.T) {
	broken := whitespaceRule(t)
	broken.ID = "quality-003"
	broken.Fix = func(types.OperationContext) policy.FixResult {
		panic("fix exploded")
	}

	remediator, store := newTestRemediator(t, broken, whitespaceRule(t))

	op := commitContext("line with space \n")
	violations := []types.Violation{
		{RuleID: "quality-003", Severity: types.SeverityLow, Message: "trailing whitespace"},
		{RuleID: "quality-002", Severity: types.SeverityLow, Message: "trailing whitespace"},
	}

	result, err := remediator.Remediate(op, violations)
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if result.Failed != 1 || result.Fixed != 1 {
		t.Fatalf("expected one failure and one fix: %+v", result)
	}
	if !strings.Contains(result.Attempts[0].Message, "fix failed") {
		t.Fatalf("panic not surfaced: %+v", result.Attempts[0])
	}

	if n, _ := store.Len(); n != 2 {
		t.Fatalf("expected 2 audit events, got %d", n)
	}
	events, _ := store.List()
	if events[0].Result != types.ResultFailure || events[1].Result != types.ResultSuccess {
		t.Fatalf("audit results mismatch: %q, %q", events[0].Result, events[1].Result)
	}
}

func TestRemediateUnknownRuleSkipped(t *testing.T) {
	remediator, store := newTestRemediator(t, whitespaceRule(t))

	result, err := remediator.Remediate(commitContext("x"), []types.Violation{
		{RuleID: "security-999", Message: "from an unloaded manifest"},
	})
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if result.Skipped != 1 || result.Attempts[0].Message != "unknown rule" {
		t.Fatalf("unknown rule should be skipped: %+v", result)
	}
	if n, _ := store.Len(); n != 0 {
		t.Fatalf("skip must not be audited")
	}
}
