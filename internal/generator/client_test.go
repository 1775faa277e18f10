package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:    url,
		APIKey:     "sk-test",
		MaxRetries: retries,
		Backoff:    time.Millisecond,
	}, observability.NopLogger())
	require.NoError(t, err)
	return c
}

func writeChoice(w http.ResponseWriter, msg Message) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": msg, "finish_reason": "stop"}},
	})
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ClientConfig
		wantModel string
		wantErr   bool
	}{
		{name: "default model", cfg: ClientConfig{APIKey: "sk-test"}, wantModel: "gpt-4o-mini"},
		{name: "custom model", cfg: ClientConfig{APIKey: "sk-test", Model: "gpt-4o"}, wantModel: "gpt-4o"},
		{name: "missing key", cfg: ClientConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg, observability.NopLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, c.Model())
			assert.Equal(t, 2, c.retry.MaxRetries)
		})
	}
}

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChoice(w, Message{Role: RoleAssistant, Content: "Hej!"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, -1)
	msg, err := c.Complete(context.Background(), ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hej"}},
		Temperature: 0,
		MaxTokens:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hej!", msg.Content)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Contains(t, got, "temperature")
	assert.NotContains(t, got, "tools")
	assert.NotContains(t, got, "tool_choice")
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeChoice(w, Message{Role: RoleAssistant, Content: "ok"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	msg, err := c.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "api error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
			},
			wantErr: "bad model",
		},
		{
			name: "non json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`nope`))
			},
			wantErr: "status 401",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantErr: ErrEmptyAnswer.Error(),
		},
		{
			name: "retries exhausted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: "after 1 retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv.URL, 1)
			_, err := c.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(2, cfg))
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), code)
	}
	for _, code := range []int{200, 400, 401, 404} {
		assert.False(t, shouldRetry(code), code)
	}
}
