package types

type RuleResult struct {
	RuleID string `json:"rule_id"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

type EvaluationResult struct {
	Passed      bool         `json:"passed"`
	Blocked     bool         `json:"blocked"`
	RuleResults []RuleResult `json:"rule_results,omitempty"`
	Violations  []Violation  `json:"violations,omitempty"`
	Summary     string       `json:"summary"`
	EventID     string       `json:"event_id,omitempty"`
}

type RemediationAttempt struct {
	RuleID  string    `json:"rule_id"`
	Fixed   bool      `json:"fixed"`
	Message string    `json:"message,omitempty"`
	EventID string    `json:"event_id,omitempty"`
	Target  Violation `json:"target"`
}

type RemediationResult struct {
	Fixed    int                  `json:"fixed"`
	Failed   int                  `json:"failed"`
	Skipped  int                  `json:"skipped"`
	Attempts []RemediationAttempt `json:"attempts,omitempty"`
}

type OverrideResult struct {
	RequestID     string `json:"request_id"`
	Approved      bool   `json:"approved"`
	State         string `json:"state"`
	Reason        string `json:"reason,omitempty"`
	Justification string `json:"justification"`
	Approver      string `json:"approver,omitempty"`
	EventID       string `json:"event_id,omitempty"`
}
