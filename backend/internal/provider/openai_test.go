package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	}
}

func newTestGenerator(t *testing.T, url string, timeout time.Duration) *OpenAIGenerator {
	t.Helper()
	g, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  "test-key",
		BaseURL: url,
		Timeout: timeout,
		Referer: "https://guardrail.local",
		Title:   "browser-guardrail",
	})
	require.NoError(t, err)
	return g
}

func TestNewOpenAIGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, ErrNotConfigured, KindOf(err))
}

func TestNewOpenAIGenerator_Defaults(t *testing.T) {
	g, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.Model())
}

func TestGenerate_Success(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("  read the article  "))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, time.Second)
	out, err := g.Generate(context.Background(), "hello", 0.1, 400)

	require.NoError(t, err)
	assert.Equal(t, "read the article", out)
	assert.Equal(t, DefaultModel, got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-6)
	assert.Equal(t, 400, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)

	assert.Equal(t, "Bearer test-key", headers.Get("Authorization"))
	assert.Equal(t, "https://guardrail.local", headers.Get("HTTP-Referer"))
	assert.Equal(t, "browser-guardrail", headers.Get("X-Title"))
}

func TestGenerate_ZeroTemperatureIsSent(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("read"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, time.Second)
	_, err := g.Generate(context.Background(), "p", 0, 10)
	require.NoError(t, err)

	require.Contains(t, body, "temperature")
	temp, ok := body["temperature"].(float64)
	require.True(t, ok)
	assert.Greater(t, temp, 0.0)
	assert.InDelta(t, 0, temp, 1e-6)
}

func TestGenerate_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrTransport},
		{"server error", http.StatusInternalServerError, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			}))
			defer server.Close()

			g := newTestGenerator(t, server.URL, time.Second)
			_, err := g.Generate(context.Background(), "p", 0.1, 10)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want, KindOf(err))

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, DefaultModel, genErr.Model)
		})
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"no choices", map[string]any{"id": "x", "object": "chat.completion", "choices": []any{}}},
		{"whitespace content", chatResponse(" \n\t ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			g := newTestGenerator(t, server.URL, time.Second)
			_, err := g.Generate(context.Background(), "p", 0.1, 10)

			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestGenerate_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	g := newTestGenerator(t, server.URL, 50*time.Millisecond)
	_, err := g.Generate(context.Background(), "p", 0.1, 10)

	assert.ErrorIs(t, err, ErrTransport)
}

func TestGenerate_ContextDeadlineIsTransport(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	g := newTestGenerator(t, server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, "p", 0.1, 10)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Error(""), KindOf(errors.New("other")))
	assert.Equal(t, Error(""), KindOf(nil))
	assert.Equal(t, ErrAuth, KindOf(&GenerationError{Kind: ErrAuth, Err: errors.New("401")}))
	assert.Equal(t, "generation_empty", ErrEmptyResponse.Code())
	assert.Equal(t, "generation_failed", Error("x").Code())
}

func TestFake(t *testing.T) {
	f := NewFake("summarize the page")
	out, err := f.Generate(context.Background(), "prompt one", 0.1, 10)
	require.NoError(t, err)
	assert.Equal(t, "summarize the page", out)
	assert.Equal(t, []string{"prompt one"}, f.Prompts())

	f.Err = &GenerationError{Kind: ErrAuth, Model: "fake"}
	_, err = f.Generate(context.Background(), "prompt two", 0.1, 10)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Len(t, f.Prompts(), 2)
}
