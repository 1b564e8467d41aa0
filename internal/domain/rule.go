package domain

// RuleDocument is the declarative screening rule source.
type RuleDocument struct {
	Categories []RuleCategory `json:"RuleBasedScreeningRules"`
}

// RuleCategory groups rules under a name. Order is significant.
type RuleCategory struct {
	Category string `json:"category"`
	Rules    []Rule `json:"rules"`
}

// Rule is a single screening rule.
type Rule struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Condition is an expression over profile field names.
	Condition string `json:"condition"`

	Action Action `json:"action"`
}

// Action is what happens when a rule's condition holds.
type Action string

const (
	ActionReject Action = "reject"
	ActionFlag   Action = "flag"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionReject || a == ActionFlag
}

// Flag records a matching flag rule.
type Flag struct {
	Rule        string `json:"rule"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
}

// Verdict is the outcome of screening a profile.
type Verdict struct {
	Rejected bool

	// Set when Rejected.
	Rule        string
	Category    string
	Description string

	// Flags holds every matching flag rule in evaluation order.
	Flags []Flag

	RulesEvaluated int
}

// Flagged reports whether the verdict accepted the profile with flags.
func (v Verdict) Flagged() bool {
	return !v.Rejected && len(v.Flags) > 0
}
