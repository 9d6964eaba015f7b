package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davidahmann/gatelog/pkg/types"
)

// CheckKind is a named, parameterizable predicate constructor. Rule manifests
// reference kinds by name; the loader binds params at registration time.
type CheckKind struct {
	Name   string
	New    func(params map[string]any) (CheckFunc, error)
	NewFix func(params map[string]any) (FixFunc, error)
}

var builtinKinds = map[string]CheckKind{
	"no-hardcoded-secrets":      {Name: "no-hardcoded-secrets", New: newNoHardcodedSecrets},
	"max-file-length":           {Name: "max-file-length", New: newMaxFileLength},
	"deployment-target-allowed": {Name: "deployment-target-allowed", New: newDeploymentTargetAllowed},
	"required-metadata":         {Name: "required-metadata", New: newRequiredMetadata},
	"no-trailing-whitespace":    {Name: "no-trailing-whitespace", New: newNoTrailingWhitespace, NewFix: newTrailingWhitespaceFix},
}

// LookupKind resolves a built-in check kind by name.
func LookupKind(name string) (CheckKind, bool) {
	kind, ok := builtinKinds[name]
	return kind, ok
}

var (
	secretAssignRe = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token|credential|private[_-]?key)\s*[:=]\s*["'][^"']+["']`)
	envRefRe       = regexp.MustCompile(`os\.Getenv|process\.env|ENV\[|\$\{|env\(`)
	secretTokenRe  = regexp.MustCompile(`["'](sk_live_|sk_test_|AKIA|ghp_|xox[bap]-)[A-Za-z0-9_\-]*`)
)

func newNoHardcodedSecrets(_ map[string]any) (CheckFunc, error) {
	return func(ctx types.OperationContext) types.CheckResult {
		violations := []types.Violation{}
		if ctx.Code == nil {
			return types.CheckResult{Passed: true}
		}
		for _, file := range ctx.Code.Files {
			for i, line := range strings.Split(file.Content, "\n") {
				if envRefRe.MatchString(line) {
					continue
				}
				if secretAssignRe.MatchString(line) || secretTokenRe.MatchString(line) {
					violations = append(violations, types.Violation{
						Message: "hardcoded secret in source; read it from the environment instead",
						File:    file.Path,
						Line:    i + 1,
						Hint:    "replace the literal with an environment-variable reference",
					})
				}
			}
		}
		return types.CheckResult{Passed: len(violations) == 0, Violations: violations}
	}, nil
}

func newMaxFileLength(params map[string]any) (CheckFunc, error) {
	maxLines, err := intParam(params, "max_lines", 1000)
	if err != nil {
		return nil, err
	}
	return func(ctx types.OperationContext) types.CheckResult {
		violations := []types.Violation{}
		if ctx.Code == nil {
			return types.CheckResult{Passed: true}
		}
		for _, file := range ctx.Code.Files {
			lines := strings.Count(file.Content, "\n") + 1
			if lines > maxLines {
				violations = append(violations, types.Violation{
					Message: fmt.Sprintf("file has %d lines, limit is %d", lines, maxLines),
					File:    file.Path,
					Hint:    "split the file into smaller units",
				})
			}
		}
		return types.CheckResult{Passed: len(violations) == 0, Violations: violations}
	}, nil
}

func newDeploymentTargetAllowed(params map[string]any) (CheckFunc, error) {
	allowed, err := stringListParam(params, "allowed")
	if err != nil {
		return nil, err
	}
	return func(ctx types.OperationContext) types.CheckResult {
		if ctx.Deployment == nil || ctx.Deployment.Target == "" {
			return types.CheckResult{Passed: true}
		}
		for _, target := range allowed {
			if target == ctx.Deployment.Target {
				return types.CheckResult{Passed: true}
			}
		}
		return types.CheckResult{Passed: false, Violations: []types.Violation{{
			Message: fmt.Sprintf("deployment target %q is not in the allowed set", ctx.Deployment.Target),
			Hint:    "deploy to one of the approved targets or amend the policy",
		}}}
	}, nil
}

func newRequiredMetadata(params map[string]any) (CheckFunc, error) {
	keys, err := stringListParam(params, "keys")
	if err != nil {
		return nil, err
	}
	return func(ctx types.OperationContext) types.CheckResult {
		violations := []types.Violation{}
		for _, key := range keys {
			value, ok := ctx.Metadata[key]
			if !ok || value == nil || value == "" {
				violations = append(violations, types.Violation{
					Message: fmt.Sprintf("required metadata field %q is missing", key),
					Hint:    "supply the field in the operation metadata",
				})
			}
		}
		return types.CheckResult{Passed: len(violations) == 0, Violations: violations}
	}, nil
}

func newNoTrailingWhitespace(_ map[string]any) (CheckFunc, error) {
	return func(ctx types.OperationContext) types.CheckResult {
		violations := []types.Violation{}
		if ctx.Code == nil {
			return types.CheckResult{Passed: true}
		}
		for _, file := range ctx.Code.Files {
			for i, line := range strings.Split(file.Content, "\n") {
				if line != strings.TrimRight(line, " \t") {
					violations = append(violations, types.Violation{
						Message: "trailing whitespace",
						File:    file.Path,
						Line:    i + 1,
						Hint:    "strip trailing whitespace",
					})
				}
			}
		}
		return types.CheckResult{Passed: len(violations) == 0, Violations: violations}
	}, nil
}

func newTrailingWhitespaceFix(_ map[string]any) (FixFunc, error) {
	return func(ctx types.OperationContext) FixResult {
		if ctx.Code == nil {
			return FixResult{Fixed: false, Message: "no code snapshot to fix"}
		}
		fixed := &types.CodeSnapshot{Files: make([]types.CodeFile, len(ctx.Code.Files))}
		changed := 0
		for i, file := range ctx.Code.Files {
			lines := strings.Split(file.Content, "\n")
			for j, line := range lines {
				trimmed := strings.TrimRight(line, " \t")
				if trimmed != line {
					changed++
				}
				lines[j] = trimmed
			}
			fixed.Files[i] = types.CodeFile{Path: file.Path, Content: strings.Join(lines, "\n")}
		}
		if changed == 0 {
			return FixResult{Fixed: false, Message: "no trailing whitespace found"}
		}
		return FixResult{Fixed: true, Message: fmt.Sprintf("stripped trailing whitespace from %d lines", changed), Code: fixed}
	}, nil
}

func intParam(params map[string]any, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("param %q: expected integer, got %T", key, raw)
	}
}

func stringListParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("param %q is required", key)
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q: expected string list", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q: expected string list, got %T", key, raw)
	}
}
