package policy

import (
	"fmt"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/cedar"
	"go.uber.org/zap"
)

// Input is what an override strategy sees
type Input struct {
	User      string
	Intent    string
	RiskScore float64
	Flags     []string
}

// OverrideStrategy may impose a decision before the default cascade runs.
// Returning false means no opinion.
type OverrideStrategy interface {
	Override(in Input) (Decision, bool)
}

// StaticOverrides pins a decision per user
type StaticOverrides map[string]Decision

// Override implements OverrideStrategy
func (s StaticOverrides) Override(in Input) (Decision, bool) {
	d, ok := s[in.User]
	return d, ok
}

// CedarOverrides answers from compiled Cedar policies.
// A forbid yields deny, a RequireApproval permit yields escalate.
type CedarOverrides struct {
	engine *cedar.Engine
}

// NewCedarOverrides wraps an already loaded engine
func NewCedarOverrides(engine *cedar.Engine) *CedarOverrides {
	return &CedarOverrides{engine: engine}
}

// LoadCedarOverrides compiles and loads an override YAML file. With watch
// set the file is recompiled whenever it changes.
func LoadCedarOverrides(path string, watch bool, logger *zap.Logger) (*CedarOverrides, error) {
	engine, err := cedar.NewEngine(path, cedar.WithCompiler(CompileBytes), cedar.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	if watch {
		if err := engine.StartHotReload(); err != nil {
			return nil, err
		}
	}
	return NewCedarOverrides(engine), nil
}

// Override implements OverrideStrategy
func (c *CedarOverrides) Override(in Input) (Decision, bool) {
	res := c.engine.Evaluate(cedar.Request{
		User:      in.User,
		Intent:    in.Intent,
		RiskScore: in.RiskScore,
		Flags:     in.Flags,
	})

	switch {
	case res.Decision == cedar.DENY:
		return Decision{
			Decision: Deny,
			Reason:   fmt.Sprintf("override policy %s", res.PolicyID),
			PolicyID: res.PolicyID,
		}, true
	case res.HasObligation(cedar.ObligationRequireApproval):
		return Decision{
			Decision: Escalate,
			Reason:   fmt.Sprintf("override policy %s requires approval", res.PolicyID),
			PolicyID: res.PolicyID,
		}, true
	default:
		return Decision{}, false
	}
}

// Version returns the loaded override version hash
func (c *CedarOverrides) Version() string {
	return c.engine.PolicyVersion()
}

// Close stops watching the override file
func (c *CedarOverrides) Close() {
	c.engine.StopHotReload()
}
