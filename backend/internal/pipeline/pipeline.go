// Package pipeline runs the four guardrail stages for one page and one user
// request: sanitize, propose, assess, adjudicate.
package pipeline

import (
	"context"
	"time"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/audit"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/critic"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/metrics"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/operator"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/policy"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/provider"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/review"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/sanitizer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the generation call
const DefaultTimeout = 60 * time.Second

// ReasonNoDecision is the reason attached when a run produced no decision
const ReasonNoDecision = "no decision produced"

// Result is everything one run produced. Decision is nil when the run failed.
type Result struct {
	RequestID  string                    `json:"request_id"`
	User       string                    `json:"user,omitempty"`
	Processed  *sanitizer.ProcessedInput `json:"processed"`
	Intent     *operator.ProposedIntent  `json:"intent,omitempty"`
	Assessment *critic.RiskAssessment    `json:"assessment,omitempty"`
	Decision   *policy.Decision          `json:"decision,omitempty"`
	ReviewID   string                    `json:"review_id,omitempty"`
	Latency    time.Duration             `json:"latency_ns"`
}

// Effective returns the decision to act on. A missing decision is a deny.
func (r *Result) Effective() policy.Decision {
	if r == nil || r.Decision == nil {
		return policy.Decision{Decision: policy.Deny, Reason: ReasonNoDecision}
	}
	return *r.Decision
}

// Pipeline holds configuration only; every Run builds its own stage instances
// so concurrent runs share no mutable state.
type Pipeline struct {
	generator       provider.Generator
	policy          *policy.Engine
	reviews         *review.Queue
	audit           audit.Sink
	policyVersion   func() string
	timeout         time.Duration
	temperature     float32
	maxTokens       int
	maxSummaryRunes int
	logger          *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTimeout bounds the generation call
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithGenerationParams sets temperature and token budget for the operator
func WithGenerationParams(temperature float32, maxTokens int) Option {
	return func(p *Pipeline) {
		p.temperature = temperature
		if maxTokens > 0 {
			p.maxTokens = maxTokens
		}
	}
}

// WithMaxSummaryRunes bounds the sanitized summary
func WithMaxSummaryRunes(n int) Option {
	return func(p *Pipeline) { p.maxSummaryRunes = n }
}

// WithPolicy sets the policy engine
func WithPolicy(e *policy.Engine) Option {
	return func(p *Pipeline) { p.policy = e }
}

// WithReviewQueue files escalated decisions for human review
func WithReviewQueue(q *review.Queue) Option {
	return func(p *Pipeline) { p.reviews = q }
}

// WithAudit sets the audit sink
func WithAudit(s audit.Sink) Option {
	return func(p *Pipeline) { p.audit = s }
}

// WithPolicyVersion reports the active override version in audit entries
func WithPolicyVersion(fn func() string) Option {
	return func(p *Pipeline) { p.policyVersion = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline around gen
func New(gen provider.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator:   gen,
		policy:      policy.NewEngine(),
		audit:       audit.Discard{},
		timeout:     DefaultTimeout,
		temperature: operator.DefaultTemperature,
		maxTokens:   operator.DefaultMaxTokens,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.audit == nil {
		p.audit = audit.Discard{}
	}
	if p.policy == nil {
		p.policy = policy.NewEngine()
	}
	return p
}

// RunOption adjusts a single run
type RunOption func(*runOptions)

type runOptions struct {
	user string
}

// ForUser applies user's policy overrides to the run
func ForUser(user string) RunOption {
	return func(o *runOptions) { o.user = user }
}

// Run evaluates one page against one user request. A generation failure
// returns the partial result with a nil Decision and the error.
func (p *Pipeline) Run(ctx context.Context, raw sanitizer.RawContent, userQuery string, opts ...RunOption) (*Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	start := time.Now()
	metrics.InvocationsTotal.Inc()

	res := &Result{RequestID: uuid.NewString(), User: ro.user}
	log := p.logger.With(zap.String("request_id", res.RequestID), zap.String("source", raw.Source))

	// Stage 1: sanitize. Nothing after this point sees raw.
	t := time.Now()
	processor := sanitizer.NewProcessor(
		sanitizer.WithMaxSummaryRunes(p.maxSummaryRunes),
		sanitizer.WithLogger(log),
	)
	res.Processed = processor.Process(raw)
	metrics.ObserveStage(metrics.StageSanitize, time.Since(t))
	metrics.RecordSignals(res.Processed.RiskSignals)
	if res.Processed.Degraded {
		metrics.DegradedParses.Inc()
	}

	// Stage 2: propose
	t = time.Now()
	op := operator.New(p.generator,
		operator.WithTemperature(p.temperature),
		operator.WithMaxTokens(p.maxTokens),
		operator.WithLogger(log),
	)
	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	intent, err := op.Propose(genCtx, res.Processed.Summary, userQuery)
	cancel()
	metrics.ObserveStage(metrics.StagePropose, time.Since(t))
	if err != nil {
		res.Latency = time.Since(start)
		p.fail(log, res, err)
		return res, err
	}
	res.Intent = intent

	// Stage 3: assess
	t = time.Now()
	res.Assessment = critic.New().Assess(intent, res.Processed.RiskSignals)
	metrics.ObserveStage(metrics.StageAssess, time.Since(t))

	// Stage 4: adjudicate
	t = time.Now()
	engine := p.policy.ForUser(ro.user)
	decision := engine.Evaluate(intent.Intent, res.Assessment.RiskScore, res.Assessment.Flags)
	metrics.ObserveStage(metrics.StagePolicy, time.Since(t))
	res.Decision = &decision

	if decision.Decision == policy.Escalate && p.reviews != nil {
		r := p.reviews.Submit(review.Submission{
			RequestID: res.RequestID,
			User:      ro.user,
			Source:    res.Processed.Provenance.Source,
			Intent:    intent.Intent,
			RiskScore: res.Assessment.RiskScore,
			Flags:     res.Assessment.Flags,
			Reason:    decision.Reason,
		})
		res.ReviewID = r.ID
	}

	res.Latency = time.Since(start)
	metrics.LatencyHistogram.Observe(res.Latency.Seconds())
	metrics.RecordDecision(string(decision.Decision))

	p.audit.Log(p.entry(res, ""))

	log.Info("guardrail decision",
		zap.String("user", engine.User()),
		zap.Strings("signals", res.Processed.RiskSignals),
		zap.Float64("risk_score", res.Assessment.RiskScore),
		zap.String("recommendation", string(res.Assessment.Recommendation)),
		zap.String("decision", string(decision.Decision)),
		zap.String("reason", decision.Reason),
		zap.Duration("latency", res.Latency))

	return res, nil
}

// fail records a run that produced no decision. It is counted and audited as a deny.
func (p *Pipeline) fail(log *zap.Logger, res *Result, err error) {
	code := provider.KindOf(err).Code()

	metrics.RecordGenerationFailure(code)
	metrics.RecordDecision(string(policy.Deny))
	metrics.LatencyHistogram.Observe(res.Latency.Seconds())

	p.audit.Log(p.entry(res, code))

	log.Error("intent generation failed",
		zap.String("kind", code),
		zap.Strings("signals", res.Processed.RiskSignals),
		zap.Error(err))
}

func (p *Pipeline) entry(res *Result, errorKind string) audit.Entry {
	eff := res.Effective()
	e := audit.Entry{
		RequestID: res.RequestID,
		User:      res.User,
		Source:    res.Processed.Provenance.Source,
		Degraded:  res.Processed.Degraded,
		Signals:   res.Processed.RiskSignals,
		Decision:  string(eff.Decision),
		Reason:    eff.Reason,
		PolicyID:  eff.PolicyID,
		ReviewID:  res.ReviewID,
		ErrorKind: errorKind,
		Latency:   res.Latency,
	}
	if res.Intent != nil {
		e.Intent = res.Intent.Intent
	}
	if res.Assessment != nil {
		e.RiskScore = res.Assessment.RiskScore
		e.Flags = res.Assessment.Flags
		e.Recommendation = string(res.Assessment.Recommendation)
	}
	if p.policyVersion != nil {
		e.PolicyVersion = p.policyVersion()
	}
	return e
}
