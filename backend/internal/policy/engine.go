// Package policy adjudicates a proposed intent into allow, deny or escalate.
//
// The default cascade is fixed. Per-user overrides are consulted first and
// can only tighten it: the most restrictive of the two outcomes wins.
package policy

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DenyThreshold is the risk score at which the cascade denies
const DenyThreshold = 0.5

const (
	socialEngineeringFlag = "signal:social_engineering"

	ReasonSensitiveCapability = "blocked sensitive capability"
	ReasonWithinPolicy        = "within policy"
)

var sensitiveIntentTerms = []string{
	"password",
	"2fa",
	"otp",
	"export",
	"email credentials",
	"admin access",
	"backup codes",
}

// Engine evaluates intents. It holds only configuration; Evaluate is safe for
// concurrent use.
type Engine struct {
	user      string
	overrides OverrideStrategy
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithUser sets the user whose overrides apply
func WithUser(user string) Option {
	return func(e *Engine) { e.user = user }
}

// WithOverrides sets the override strategy
func WithOverrides(s OverrideStrategy) Option {
	return func(e *Engine) { e.overrides = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine. Without options it applies the default cascade only.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForUser returns a copy of the engine bound to user
func (e *Engine) ForUser(user string) *Engine {
	cp := *e
	cp.user = user
	return &cp
}

// User returns the bound user
func (e *Engine) User() string {
	return e.user
}

// Evaluate is deterministic for a fixed engine configuration
func (e *Engine) Evaluate(intent string, riskScore float64, flags []string) Decision {
	var override *Decision
	if e.overrides != nil {
		if d, ok := e.overrides.Override(Input{
			User:      e.user,
			Intent:    intent,
			RiskScore: riskScore,
			Flags:     flags,
		}); ok {
			if d.Decision == Deny {
				e.logDecision(d, true)
				return d
			}
			override = &d
		}
	}

	d := evaluateDefault(intent, riskScore, flags)
	if override != nil && override.Decision.severity() > d.Decision.severity() {
		d = *override
	}
	e.logDecision(d, override != nil && d == *override)
	return d
}

// evaluateDefault is the fixed cascade; the first matching rule wins
func evaluateDefault(intent string, riskScore float64, flags []string) Decision {
	if riskScore >= DenyThreshold || contains(flags, socialEngineeringFlag) {
		return Decision{
			Decision: Deny,
			Reason:   fmt.Sprintf("high risk (%.2f), flags=%v", riskScore, flags),
		}
	}

	lowered := strings.ToLower(intent)
	for _, term := range sensitiveIntentTerms {
		if strings.Contains(lowered, term) {
			return Decision{Decision: Deny, Reason: ReasonSensitiveCapability}
		}
	}

	return Decision{Decision: Allow, Reason: ReasonWithinPolicy}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (e *Engine) logDecision(d Decision, fromOverride bool) {
	if e.logger != nil {
		e.logger.Debug("policy decision",
			zap.String("user", e.user),
			zap.String("decision", string(d.Decision)),
			zap.String("reason", d.Reason),
			zap.Bool("override", fromOverride))
	}
}
