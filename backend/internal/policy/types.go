package policy

// Verdict is the adjudicated outcome for a proposed intent
type Verdict string

const (
	Allow    Verdict = "allow"
	Deny     Verdict = "deny"
	Escalate Verdict = "escalate"
)

// severity orders verdicts from least to most restrictive
func (v Verdict) severity() int {
	switch v {
	case Allow:
		return 0
	case Escalate:
		return 1
	default:
		return 2
	}
}

// Decision is the policy engine's output
type Decision struct {
	Decision Verdict `json:"decision"`
	Reason   string  `json:"reason"`
	// PolicyID names the override policy that decided, when one did
	PolicyID string `json:"policy_id,omitempty"`
}

// Overrides is the per-user override file
type Overrides struct {
	Version  string               `yaml:"version"`
	Defaults *UserRules           `yaml:"defaults,omitempty"`
	Users    map[string]UserRules `yaml:"users"`
}

// UserRules tighten the default cascade for one user. They can never loosen it.
type UserRules struct {
	DenyTerms     []string `yaml:"deny_terms,omitempty"`     // intent substring -> deny
	EscalateTerms []string `yaml:"escalate_terms,omitempty"` // intent substring -> escalate
	DenySignals   []string `yaml:"deny_signals,omitempty"`   // signal name raised -> deny
	MaxRisk       *float64 `yaml:"max_risk,omitempty"`       // risk score >= max_risk -> deny
}

func (r UserRules) empty() bool {
	return len(r.DenyTerms) == 0 && len(r.EscalateTerms) == 0 &&
		len(r.DenySignals) == 0 && r.MaxRisk == nil
}
