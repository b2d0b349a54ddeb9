// Package review holds escalated decisions until a human approves or denies
// them. Anything not approved before it expires counts as denied.
package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status represents the status of a review request
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

const (
	// DefaultTimeout applies when the queue is configured without one
	DefaultTimeout = 5 * time.Minute
	// DefaultRetention is how long resolved and expired requests stay queryable
	DefaultRetention = time.Hour
	// DefaultWaitInterval is the Wait poll interval when none is given
	DefaultWaitInterval = 250 * time.Millisecond
)

// Request is an escalated decision awaiting review
type Request struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"request_id"`
	User        string     `json:"user,omitempty"`
	Source      string     `json:"source"`
	Intent      string     `json:"intent"`
	RiskScore   float64    `json:"risk_score"`
	Flags       []string   `json:"flags"`
	Reason      string     `json:"reason"`
	RequestedAt time.Time  `json:"requested_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Status      Status     `json:"status"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// Submission is what the pipeline files for review
type Submission struct {
	RequestID string
	User      string
	Source    string
	Intent    string
	RiskScore float64
	Flags     []string
	Reason    string
}

// Queue manages pending reviews in memory. It is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	timeout   time.Duration
	retention time.Duration
	requests  map[string]*Request
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithTimeout sets how long a request stays pending
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRetention sets how long finished requests are kept before eviction
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// withClock replaces time.Now; tests only
func withClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates an empty Queue
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		timeout:   DefaultTimeout,
		retention: DefaultRetention,
		requests:  make(map[string]*Request),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit files a new pending review
func (q *Queue) Submit(s Submission) *Request {
	now := q.now().UTC()
	flags := make([]string, len(s.Flags))
	copy(flags, s.Flags)

	req := &Request{
		ID:          uuid.NewString(),
		RequestID:   s.RequestID,
		User:        s.User,
		Source:      s.Source,
		Intent:      s.Intent,
		RiskScore:   s.RiskScore,
		Flags:       flags,
		Reason:      s.Reason,
		RequestedAt: now,
		ExpiresAt:   now.Add(q.timeout),
		Status:      StatusPending,
	}

	q.mu.Lock()
	q.pruneLocked()
	q.requests[req.ID] = req
	q.mu.Unlock()

	q.logInfo("review requested",
		zap.String("review_id", req.ID),
		zap.String("request_id", req.RequestID),
		zap.String("reason", req.Reason))

	return req.clone()
}

// Get returns a snapshot of a request
func (q *Queue) Get(id string) (*Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	q.expireLocked(req)
	return req.clone(), nil
}

// Pending lists requests still awaiting review, oldest first
func (q *Queue) Pending() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked()
	out := make([]*Request, 0)
	for _, req := range q.requests {
		q.expireLocked(req)
		if req.Status == StatusPending {
			out = append(out, req.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Approve approves a pending request
func (q *Queue) Approve(id, reviewer string) (*Request, error) {
	return q.resolve(id, reviewer, "", StatusApproved)
}

// Deny denies a pending request
func (q *Queue) Deny(id, reviewer, note string) (*Request, error) {
	return q.resolve(id, reviewer, note, StatusDenied)
}

func (q *Queue) resolve(id, reviewer, note string, status Status) (*Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if q.expireLocked(req) {
		return nil, ErrExpired
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidStatus
	}

	now := q.now().UTC()
	req.Status = status
	req.ReviewedBy = reviewer
	req.ReviewedAt = &now
	req.Note = note

	q.logInfo("review resolved",
		zap.String("review_id", id),
		zap.String("status", string(status)),
		zap.String("reviewer", reviewer))

	return req.clone(), nil
}

// Wait blocks until the request is approved, denied or expired, or ctx is done
func (q *Queue) Wait(ctx context.Context, id string, interval time.Duration) (*Request, error) {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := q.Get(id)
		if err != nil {
			return nil, err
		}

		switch req.Status {
		case StatusApproved:
			return req, nil
		case StatusDenied:
			return req, ErrDenied
		case StatusExpired:
			return req, ErrExpired
		}

		select {
		case <-ctx.Done():
			return req, ctx.Err()
		case <-ticker.C:
		}
	}
}

// expireLocked marks a pending request expired once past its deadline
func (q *Queue) expireLocked(req *Request) bool {
	if req.Status == StatusPending && q.now().After(req.ExpiresAt) {
		req.Status = StatusExpired
		q.logInfo("review expired", zap.String("review_id", req.ID))
	}
	return req.Status == StatusExpired
}

// pruneLocked evicts requests that finished more than retention ago
func (q *Queue) pruneLocked() {
	cutoff := q.now().Add(-q.retention)
	for id, req := range q.requests {
		q.expireLocked(req)
		var finished time.Time
		switch {
		case req.Status == StatusExpired:
			finished = req.ExpiresAt
		case req.ReviewedAt != nil:
			finished = *req.ReviewedAt
		default:
			continue
		}
		if finished.Before(cutoff) {
			delete(q.requests, id)
		}
	}
}

func (r *Request) clone() *Request {
	cp := *r
	cp.Flags = append([]string(nil), r.Flags...)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

func (q *Queue) logInfo(msg string, fields ...zap.Field) {
	if q.logger != nil {
		q.logger.Info(msg, fields...)
	}
}

// Errors
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotFound      = Error("review request not found")
	ErrInvalidStatus = Error("review request is not pending")
	ErrExpired       = Error("review request has expired")
	ErrDenied        = Error("review request was denied")
)
