package provider

import (
	"context"
	"errors"
	"fmt"
)

// Generator is the single capability the guardrail needs from a language model
type Generator interface {
	// Generate returns the completion text for prompt
	Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// Error is a generation failure kind
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotConfigured Error = "generator credential not configured"
	ErrAuth          Error = "generator authentication failed"
	ErrTransport     Error = "generator transport failure"
	ErrEmptyResponse Error = "generator returned no content"
)

// GenerationError carries the failure kind and the underlying cause
type GenerationError struct {
	Kind  Error
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (model %s)", e.Kind, e.Model)
	}
	return fmt.Sprintf("%s (model %s): %v", e.Kind, e.Model, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is
func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure kind of err, or "" if err is not a generation failure
func KindOf(err error) Error {
	for _, kind := range []Error{ErrNotConfigured, ErrAuth, ErrTransport, ErrEmptyResponse} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ""
}

// Code is the short machine name of a failure kind
func (e Error) Code() string {
	switch e {
	case ErrNotConfigured:
		return "generation_not_configured"
	case ErrAuth:
		return "generation_auth"
	case ErrTransport:
		return "generation_transport"
	case ErrEmptyResponse:
		return "generation_empty"
	default:
		return "generation_failed"
	}
}
