package policy

import "github.com/davidahmann/gatelog/pkg/types"

type EnforcementMode string

const (
	ModeBlock    EnforcementMode = "block"
	ModeWarn     EnforcementMode = "warn"
	ModeLog      EnforcementMode = "log"
	ModeAdvisory EnforcementMode = "advisory"
)

func (m EnforcementMode) Valid() bool {
	switch m {
	case ModeBlock, ModeWarn, ModeLog, ModeAdvisory:
		return true
	default:
		return false
	}
}

// CheckFunc inspects an operation context and reports violations. Checks are
// opaque predicates to the registry; they must not mutate the context.
type CheckFunc func(ctx types.OperationContext) types.CheckResult

type FixResult struct {
	Fixed   bool
	Message string
	// Code carries the repaired snapshot when the fix rewrites source files.
	Code *types.CodeSnapshot
}

type FixFunc func(ctx types.OperationContext) FixResult

// Rule is an immutable policy definition. Updates go through
// Registry.Update, which bumps Version and preserves the prior revision.
type Rule struct {
	ID          string
	Name        string
	Description string
	Rationale   string
	Category    string
	Severity    types.Severity
	Mode        EnforcementMode

	// AppliesTo lists operation prefixes the rule is relevant to
	// ("deploy." matches "deploy.production"). Empty means all operations.
	AppliesTo []string

	Check      CheckFunc
	CanAutoFix bool
	Fix        FixFunc
	Guidance   string

	Version   int
	CreatedAt string
	UpdatedAt string

	Disabled       bool
	DisabledReason string
}

// AppliesToOperation reports whether the rule is relevant to operation.
func (r Rule) AppliesToOperation(operation string) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	for _, prefix := range r.AppliesTo {
		if prefix != "" && len(operation) >= len(prefix) && operation[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
