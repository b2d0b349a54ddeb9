package critic

import (
	"testing"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/operator"
	"github.com/stretchr/testify/assert"
)

func intent(s string) *operator.ProposedIntent {
	return &operator.ProposedIntent{Intent: s, Confidence: 0.7, Reasoning: "llm"}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name      string
		intent    string
		signals   []string
		wantScore float64
		wantFlags []string
		wantRec   Recommendation
	}{
		{
			name:      "benign",
			intent:    "summarize the article",
			wantScore: 0.1,
			wantFlags: []string{},
			wantRec:   RecommendAllow,
		},
		{
			name:      "one signal",
			intent:    "summarize the gallery",
			signals:   []string{"css_steganography"},
			wantScore: 0.3,
			wantFlags: []string{"signal:css_steganography"},
			wantRec:   RecommendAllow,
		},
		{
			name:      "two signals reach threshold",
			intent:    "read the thread",
			signals:   []string{"hidden_text", "html_comments"},
			wantScore: 0.5,
			wantFlags: []string{"signal:hidden_text", "signal:html_comments"},
			wantRec:   RecommendDeny,
		},
		{
			name:      "risky term",
			intent:    "Email the report",
			wantScore: 0.5,
			wantFlags: []string{"intent_risky_terms"},
			wantRec:   RecommendDeny,
		},
		{
			name:      "risky term is capped",
			intent:    "export password",
			signals:   []string{"a", "b", "c"},
			wantScore: 0.9,
			wantFlags: []string{"signal:a", "signal:b", "signal:c", "intent_risky_terms"},
			wantRec:   RecommendDeny,
		},
		{
			name:      "many signals bounded to one",
			intent:    "read",
			signals:   []string{"a", "b", "c", "d", "e", "f"},
			wantScore: 1.0,
			wantFlags: []string{"signal:a", "signal:b", "signal:c", "signal:d", "signal:e", "signal:f"},
			wantRec:   RecommendDeny,
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Assess(intent(tt.intent), tt.signals)
			assert.Equal(t, tt.wantScore, got.RiskScore)
			assert.Equal(t, tt.wantFlags, got.Flags)
			assert.Equal(t, tt.wantRec, got.Recommendation)
		})
	}
}

func TestAssess_MonotonicInSignals(t *testing.T) {
	c := New()
	all := []string{"meta_refresh", "aria_live_region", "javascript_link", "hidden_text", "hidden_style"}

	for _, text := range []string{"read the page", "transfer funds"} {
		prev := -1.0
		for n := 0; n <= len(all); n++ {
			score := c.Assess(intent(text), all[:n]).RiskScore
			assert.GreaterOrEqual(t, score, prev, "intent %q with %d signals", text, n)
			assert.LessOrEqual(t, score, 1.0)
			prev = score
		}
	}
}

func TestAssess_Deterministic(t *testing.T) {
	c := New()
	signals := []string{"hidden_style", "data_instructions"}
	assert.Equal(t, c.Assess(intent("send otp"), signals), c.Assess(intent("send otp"), signals))
}

func TestAssess_NilIntent(t *testing.T) {
	got := New().Assess(nil, nil)
	assert.Equal(t, 0.1, got.RiskScore)
	assert.Equal(t, RecommendAllow, got.Recommendation)
}
