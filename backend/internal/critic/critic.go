// Package critic scores a proposed intent against the signals extracted from
// the page it came from.
package critic

import (
	"math"
	"strings"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/operator"
)

// Recommendation is the critic's own verdict, kept separate from the policy decision
type Recommendation string

const (
	RecommendAllow Recommendation = "allow"
	RecommendDeny  Recommendation = "deny"
)

const (
	// SignalFlagPrefix prefixes every signal carried into the flags
	SignalFlagPrefix = "signal:"
	// FlagIntentRiskyTerms marks an intent containing a risky term
	FlagIntentRiskyTerms = "intent_risky_terms"

	baseRisk      = 0.1
	perSignalRisk = 0.2
	lexicalBump   = 0.4
	lexicalCap    = 0.9
	DenyThreshold = 0.5
)

var riskyIntentTerms = []string{"password", "email", "2fa", "otp", "export", "transfer"}

// RiskAssessment is the critic's output
type RiskAssessment struct {
	RiskScore      float64        `json:"risk_score"`
	Flags          []string       `json:"flags"`
	Recommendation Recommendation `json:"recommendation"`
}

// Critic is stateless; the zero value is ready to use
type Critic struct{}

// New returns a Critic
func New() *Critic {
	return &Critic{}
}

// Assess is a pure function of the intent text and the signal list
func (c *Critic) Assess(intent *operator.ProposedIntent, signals []string) *RiskAssessment {
	flags := make([]string, 0, len(signals)+1)
	for _, s := range signals {
		flags = append(flags, SignalFlagPrefix+s)
	}

	risk := baseRisk + perSignalRisk*float64(len(signals))

	text := ""
	if intent != nil {
		text = strings.ToLower(intent.Intent)
	}
	if containsAny(text, riskyIntentTerms) {
		risk = math.Min(lexicalCap, risk+lexicalBump)
		flags = append(flags, FlagIntentRiskyTerms)
	} else {
		risk = math.Min(1.0, risk)
	}
	risk = round2(risk)

	rec := RecommendAllow
	if risk >= DenyThreshold {
		rec = RecommendDeny
	}

	return &RiskAssessment{
		RiskScore:      risk,
		Flags:          flags,
		Recommendation: rec,
	}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
