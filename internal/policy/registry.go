package policy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrDuplicateRule = errors.New("duplicate rule id")
	ErrRuleNotFound  = errors.New("rule not found")
)

// Rule ids are "<category>-<NNN>", e.g. "security-001".
var ruleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*-\d{3}$`)

const (
	minNameLen        = 3
	minDescriptionLen = 10
	minRationaleLen   = 10
)

// Registry owns rule definitions. Rules are registered once and updated only
// through versioned Update calls; prior revisions are retained.
type Registry struct {
	mu      sync.RWMutex
	rules   map[string]Rule
	history map[string][]Rule
}

func NewRegistry() *Registry {
	return &Registry{
		rules:   make(map[string]Rule),
		history: make(map[string][]Rule),
	}
}

// Register validates and adds a new rule. The registry is left unchanged on
// any validation failure.
func (r *Registry) Register(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	rule.Version = 1
	if rule.CreatedAt == "" {
		rule.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	rule.UpdatedAt = rule.CreatedAt
	r.rules[rule.ID] = rule
	return nil
}

// Update replaces an existing rule with a new revision, bumping the version
// and pushing the prior revision into history.
func (r *Registry) Update(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.rules[rule.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	r.history[rule.ID] = append(r.history[rule.ID], current)
	rule.Version = current.Version + 1
	rule.CreatedAt = current.CreatedAt
	rule.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	r.rules[rule.ID] = rule
	return nil
}

// Disable marks a rule inactive without deleting it or its history.
func (r *Registry) Disable(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	rule.Disabled = true
	rule.DisabledReason = reason
	rule.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	r.rules[id] = rule
	return nil
}

func (r *Registry) Enable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	rule.Disabled = false
	rule.DisabledReason = ""
	rule.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	r.rules[id] = rule
	return nil
}

func (r *Registry) Get(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	return rule, ok
}

// History returns prior revisions of a rule, oldest first.
func (r *Registry) History(id string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.history[id]...)
}

func (r *Registry) ListByCategory(category string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Rule{}
	for _, rule := range r.rules {
		if rule.Category == category {
			out = append(out, rule)
		}
	}
	sortRules(out)
	return out
}

func (r *Registry) List() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sortRules(out)
	return out
}

// Relevant returns enabled rules applicable to the given operation.
func (r *Registry) Relevant(operation string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Rule{}
	for _, rule := range r.rules {
		if rule.Disabled {
			continue
		}
		if rule.AppliesToOperation(operation) {
			out = append(out, rule)
		}
	}
	sortRules(out)
	return out
}

func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
}

func validateRule(rule Rule) error {
	if !ruleIDPattern.MatchString(rule.ID) {
		return fmt.Errorf("invalid rule id %q: want <category>-<NNN>", rule.ID)
	}
	if rule.Category == "" || !strings.HasPrefix(rule.ID, rule.Category+"-") {
		return fmt.Errorf("rule id %q must be prefixed by its category %q", rule.ID, rule.Category)
	}
	if len(rule.Name) < minNameLen {
		return fmt.Errorf("rule %s: name shorter than %d characters", rule.ID, minNameLen)
	}
	if len(rule.Description) < minDescriptionLen {
		return fmt.Errorf("rule %s: description shorter than %d characters", rule.ID, minDescriptionLen)
	}
	if len(rule.Rationale) < minRationaleLen {
		return fmt.Errorf("rule %s: rationale shorter than %d characters", rule.ID, minRationaleLen)
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", rule.ID, rule.Severity)
	}
	if !rule.Mode.Valid() {
		return fmt.Errorf("rule %s: invalid enforcement mode %q", rule.ID, rule.Mode)
	}
	if rule.Check == nil {
		return fmt.Errorf("rule %s: missing check", rule.ID)
	}
	if rule.CanAutoFix && rule.Fix == nil {
		return fmt.Errorf("rule %s: auto_fix declared without fix", rule.ID)
	}
	return nil
}
