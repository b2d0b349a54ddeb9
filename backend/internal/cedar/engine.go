// Package cedar evaluates per-user override policies written in Cedar.
package cedar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cedar-policy/cedar-go"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Decision is the raw Cedar outcome
type Decision string

const (
	ALLOW Decision = "ALLOW"
	DENY  Decision = "DENY"
)

// ObligationRequireApproval marks a permit that sends the action to human review
const ObligationRequireApproval = "RequireApproval"

// AnonymousPrincipal is the principal used when a request names no user.
// Its entity type differs from User so no per-user rule can match it.
var AnonymousPrincipal = cedar.NewEntityUID("Anonymous", "anonymous")

// Obligation is an annotation carried by a determining policy
type Obligation struct {
	Type string `json:"type"`
}

// Request is the fact set a policy sees
type Request struct {
	User      string
	Intent    string
	RiskScore float64
	Flags     []string
}

// EvaluationResult contains the decision and any obligations
type EvaluationResult struct {
	Decision    Decision
	Reason      string
	PolicyID    string
	Obligations []Obligation
}

// HasObligation reports whether an obligation of type t was attached
func (r EvaluationResult) HasObligation(t string) bool {
	for _, o := range r.Obligations {
		if o.Type == t {
			return true
		}
	}
	return false
}

// CompileFunc turns a policy file into Cedar text before it is parsed
type CompileFunc func(data []byte) (string, error)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCompiler makes the engine compile the watched file on every load
func WithCompiler(fn CompileFunc) Option {
	return func(e *Engine) { e.compile = fn }
}

// Engine wraps the Cedar policy engine with hot-reloading support
type Engine struct {
	policySet     atomic.Pointer[cedar.PolicySet]
	policyVersion atomic.Pointer[string]
	PolicyPath    string

	compile    CompileFunc
	watcher    *fsnotify.Watcher
	stopWatch  chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
	reloadLock sync.Mutex
}

// PolicyVersion returns the current policy version (thread-safe)
func (e *Engine) PolicyVersion() string {
	v := e.policyVersion.Load()
	if v == nil {
		return ""
	}
	return *v
}

// NewEngine creates an Engine and loads policies from a file
func NewEngine(policyPath string, opts ...Option) (*Engine, error) {
	e := newEngine(opts...)
	e.PolicyPath = policyPath

	if err := e.reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEngineFromSource creates an Engine from Cedar text held in memory.
// Hot reload is not available for such an engine.
func NewEngineFromSource(name, src string, opts ...Option) (*Engine, error) {
	e := newEngine(opts...)
	if err := e.load(name, []byte(src)); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(opts ...Option) *Engine {
	e := &Engine{stopWatch: make(chan struct{})}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartHotReload enables fsnotify file watching for policy hot-reloading
func (e *Engine) StartHotReload() error {
	if e.PolicyPath == "" {
		return fmt.Errorf("hot reload requires a policy file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	e.watcher = watcher

	if err := watcher.Add(e.PolicyPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy file: %w", err)
	}

	go e.watchLoop()

	e.logInfo("policy hot reload enabled", zap.String("path", e.PolicyPath))
	return nil
}

// StopHotReload stops the file watcher
func (e *Engine) StopHotReload() {
	if e.watcher == nil {
		return
	}
	e.stopOnce.Do(func() {
		close(e.stopWatch)
		e.watcher.Close()
	})
}

func (e *Engine) watchLoop() {
	// Debounce rapid saves
	var debounceTimer *time.Timer
	debounce := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					oldVersion := e.PolicyVersion()
					if err := e.Reload(); err != nil {
						// the previous policy set stays active
						e.logError("policy hot reload failed", zap.Error(err))
					} else {
						e.logInfo("policy hot reload succeeded",
							zap.String("from", oldVersion), zap.String("to", e.PolicyVersion()))
					}
				})
			}
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logError("policy watcher error", zap.Error(err))
		case <-e.stopWatch:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// Reload re-reads the policy file
func (e *Engine) Reload() error {
	e.reloadLock.Lock()
	defer e.reloadLock.Unlock()
	return e.reload()
}

func (e *Engine) reload() error {
	data, err := os.ReadFile(e.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	return e.load(e.PolicyPath, data)
}

// load parses data and swaps the active policy set. On error the active set
// is left untouched.
func (e *Engine) load(name string, data []byte) error {
	// Version hashes the file as written, before compilation
	hash := sha256.Sum256(data)
	version := hex.EncodeToString(hash[:])[:12]

	src := data
	if e.compile != nil {
		text, err := e.compile(data)
		if err != nil {
			return fmt.Errorf("failed to compile policy file: %w", err)
		}
		src = []byte(text)
	}

	ps, err := cedar.NewPolicySetFromBytes(name, src)
	if err != nil {
		return fmt.Errorf("failed to parse cedar policies: %w", err)
	}

	e.policySet.Store(ps)
	e.policyVersion.Store(&version)
	return nil
}

// Evaluate checks the request against the active policies
func (e *Engine) Evaluate(r Request) EvaluationResult {
	ps := e.policySet.Load()
	if ps == nil {
		return EvaluationResult{
			Decision: DENY,
			Reason:   "policy engine not initialized",
		}
	}

	principal := AnonymousPrincipal
	if r.User != "" {
		principal = cedar.NewEntityUID("User", cedar.String(r.User))
	}

	flagValues := make([]cedar.Value, len(r.Flags))
	for i, f := range r.Flags {
		flagValues[i] = cedar.String(f)
	}

	req := cedar.Request{
		Principal: principal,
		Action:    cedar.NewEntityUID("Action", "propose"),
		Resource:  cedar.NewEntityUID("Page", "current"),
		Context: cedar.NewRecord(cedar.RecordMap{
			"intent":     cedar.String(strings.ToLower(r.Intent)),
			"risk_score": cedar.Long(int64(math.Round(r.RiskScore * 100))),
			"flags":      cedar.NewSet(flagValues...),
		}),
	}

	ok, diagnostics := cedar.Authorize(ps, cedar.EntityMap{}, req)

	var obligations []Obligation
	var policyID string

	for i, reason := range diagnostics.Reasons {
		if i == 0 {
			policyID = string(reason.PolicyID)
		}
		p := ps.Get(reason.PolicyID)
		if p == nil {
			continue
		}
		if typeVal, found := p.Annotations()["obligation"]; found {
			obligations = append(obligations, Obligation{Type: string(typeVal)})
			// the annotated policy is the interesting one to report
			policyID = string(reason.PolicyID)
		}
	}

	if ok {
		return EvaluationResult{
			Decision:    ALLOW,
			Reason:      "override policy allowed the request",
			PolicyID:    policyID,
			Obligations: obligations,
		}
	}

	return EvaluationResult{
		Decision:    DENY,
		Reason:      "override policy denied the request",
		PolicyID:    policyID,
		Obligations: obligations,
	}
}

// logging helpers
func (e *Engine) logInfo(msg string, fields ...zap.Field) {
	if e.logger != nil {
		e.logger.Info(msg, fields...)
	}
}

func (e *Engine) logError(msg string, fields ...zap.Field) {
	if e.logger != nil {
		e.logger.Error(msg, fields...)
	}
}
