package provider

import (
	"context"
	"sync"
)

// Fake is an in-memory Generator for tests. It records every prompt it sees.
type Fake struct {
	Response string
	Err      error

	mu      sync.Mutex
	prompts []string
}

// NewFake returns a Fake that answers every prompt with response
func NewFake(response string) *Fake {
	return &Fake{Response: response}
}

// Generate returns Err if set, otherwise Response
func (f *Fake) Generate(ctx context.Context, prompt string, _ float32, _ int) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", &GenerationError{Kind: ErrTransport, Model: "fake", Err: err}
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

// Prompts returns a copy of the prompts received so far
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}
