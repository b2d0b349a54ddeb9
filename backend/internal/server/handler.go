// Package server exposes the guardrail pipeline and the review queue over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/pipeline"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/policy"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/provider"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/review"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/sanitizer"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRequestSize caps request bodies
	DefaultMaxRequestSize = 10 * 1024 * 1024

	// DefaultReviewWait and MaxReviewWait bound GET /v1/reviews/{id}/wait.
	// MaxReviewWait stays below the server write timeout.
	DefaultReviewWait = 30 * time.Second
	MaxReviewWait     = 60 * time.Second
)

// Runner runs the guardrail pipeline
type Runner interface {
	Run(ctx context.Context, raw sanitizer.RawContent, userQuery string, opts ...pipeline.RunOption) (*pipeline.Result, error)
}

// HandlerConfig holds configuration for the HTTP handlers
type HandlerConfig struct {
	Pipeline        Runner
	Reviews         *review.Queue
	MaxRequestSize  int64
	MetricsEnabled  bool
	MetricsEndpoint string
	Logger          *zap.Logger
}

// EvaluateRequest is the body of POST /v1/evaluate
type EvaluateRequest struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	Query   string `json:"query"`
	User    string `json:"user,omitempty"`
}

// EvaluateResponse reports a decision and how it was reached
type EvaluateResponse struct {
	RequestID      string   `json:"request_id"`
	Decision       string   `json:"decision"`
	Reason         string   `json:"reason"`
	PolicyID       string   `json:"policy_id,omitempty"`
	Intent         string   `json:"intent"`
	RiskScore      float64  `json:"risk_score"`
	Recommendation string   `json:"recommendation"`
	Flags          []string `json:"flags"`
	Signals        []string `json:"signals"`
	Degraded       bool     `json:"degraded,omitempty"`
	ReviewID       string   `json:"review_id,omitempty"`
	LatencyMS      int64    `json:"latency_ms"`
}

// GuardrailErrorResponse is returned when no decision could be made.
// Decision is always deny.
type GuardrailErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
}

// ReviewAction is the body of the approve and deny endpoints
type ReviewAction struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
}

// NewRouter wires every endpoint
func NewRouter(hc *HandlerConfig) http.Handler {
	if hc.MaxRequestSize <= 0 {
		hc.MaxRequestSize = DefaultMaxRequestSize
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "browser-guardrail"})
	})

	mux.HandleFunc("POST /v1/evaluate", EvaluateHandler(hc))

	if hc.Reviews != nil {
		mux.HandleFunc("GET /v1/reviews", hc.listReviews)
		mux.HandleFunc("GET /v1/reviews/{id}", hc.getReview)
		mux.HandleFunc("GET /v1/reviews/{id}/wait", hc.waitReview)
		mux.HandleFunc("POST /v1/reviews/{id}/approve", hc.resolveReview(true))
		mux.HandleFunc("POST /v1/reviews/{id}/deny", hc.resolveReview(false))
	}

	if hc.MetricsEnabled {
		endpoint := hc.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.Handle("GET "+endpoint, promhttp.Handler())
	}

	return mux
}

// EvaluateHandler runs the pipeline for one request. Every failure answers deny.
func EvaluateHandler(hc *HandlerConfig) http.HandlerFunc {
	limit := hc.MaxRequestSize
	if limit <= 0 {
		limit = DefaultMaxRequestSize
	}

	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				sendErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body exceeds limit", requestID)
				return
			}
			hc.logError("failed to read request body", zap.Error(err))
			sendErrorResponse(w, http.StatusBadRequest, "invalid_request", "Failed to read request body", requestID)
			return
		}

		var req EvaluateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			sendErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON", requestID)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			sendErrorResponse(w, http.StatusBadRequest, "invalid_request", "query is required", requestID)
			return
		}
		if req.Source == "" {
			req.Source = "request:" + requestID
		}

		raw := sanitizer.RawContent{Source: req.Source, Body: []byte(req.Content)}
		res, err := hc.Pipeline.Run(r.Context(), raw, req.Query, pipeline.ForUser(req.User))
		if err != nil {
			if res != nil && res.RequestID != "" {
				requestID = res.RequestID
			}
			kind := provider.KindOf(err)
			hc.logError("evaluation failed",
				zap.String("request_id", requestID), zap.String("kind", kind.Code()), zap.Error(err))
			sendErrorResponse(w, statusForKind(kind), kind.Code(), "Intent generation failed; action denied", requestID)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(res))
	}
}

func toResponse(res *pipeline.Result) EvaluateResponse {
	eff := res.Effective()
	out := EvaluateResponse{
		RequestID: res.RequestID,
		Decision:  string(eff.Decision),
		Reason:    eff.Reason,
		PolicyID:  eff.PolicyID,
		Flags:     []string{},
		Signals:   res.Processed.RiskSignals,
		Degraded:  res.Processed.Degraded,
		ReviewID:  res.ReviewID,
		LatencyMS: res.Latency.Milliseconds(),
	}
	if res.Intent != nil {
		out.Intent = res.Intent.Intent
	}
	if res.Assessment != nil {
		out.RiskScore = res.Assessment.RiskScore
		out.Recommendation = string(res.Assessment.Recommendation)
		out.Flags = res.Assessment.Flags
	}
	return out
}

func statusForKind(kind provider.Error) int {
	switch kind {
	case provider.ErrAuth, provider.ErrNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (hc *HandlerConfig) listReviews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reviews": hc.Reviews.Pending()})
}

func (hc *HandlerConfig) getReview(w http.ResponseWriter, r *http.Request) {
	req, err := hc.Reviews.Get(r.PathValue("id"))
	if err != nil {
		sendReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// waitReview blocks until the review is resolved or the wait times out.
// A resolved, expired or still pending request is answered with its snapshot.
func (hc *HandlerConfig) waitReview(w http.ResponseWriter, r *http.Request) {
	wait := DefaultReviewWait
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			sendErrorResponse(w, http.StatusBadRequest, "invalid_request", "timeout must be a positive duration", "")
			return
		}
		wait = min(d, MaxReviewWait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	req, err := hc.Reviews.Wait(ctx, r.PathValue("id"), review.DefaultWaitInterval)
	switch {
	case errors.Is(err, review.ErrNotFound):
		sendReviewError(w, err)
		return
	case r.Context().Err() != nil:
		// client went away
		return
	case req == nil:
		hc.logError("review wait failed", zap.Error(err))
		sendReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (hc *HandlerConfig) resolveReview(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var action ReviewAction
		if r.ContentLength != 0 {
			if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&action); err != nil && !errors.Is(err, io.EOF) {
				sendErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON", "")
				return
			}
		}
		if action.Reviewer == "" {
			action.Reviewer = "anonymous"
		}

		var (
			req *review.Request
			err error
		)
		id := r.PathValue("id")
		if approve {
			req, err = hc.Reviews.Approve(id, action.Reviewer)
		} else {
			req, err = hc.Reviews.Deny(id, action.Reviewer, action.Note)
		}
		if err != nil {
			sendReviewError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func sendReviewError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	code := "review_conflict"
	if errors.Is(err, review.ErrNotFound) {
		status = http.StatusNotFound
		code = "review_not_found"
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func sendErrorResponse(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, GuardrailErrorResponse{
		Error:     "guardrail_error",
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Decision:  string(policy.Deny),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (hc *HandlerConfig) logError(msg string, fields ...zap.Field) {
	if hc.Logger != nil {
		hc.Logger.Error(msg, fields...)
	}
}
