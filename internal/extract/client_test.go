package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientForcesFunctionCall(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"extract_foods","arguments":"{\"dishes\":[]}"}}]}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL+"/"), WithModel("gpt-test"))
	args, err := c.CallFunction(context.Background(), FunctionCall{
		System:     "sys",
		User:       "toast",
		Name:       FunctionName,
		Parameters: FunctionSchema(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dishes":[]}`, string(args))

	assert.Equal(t, "gpt-test", got.Model)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "toast", got.Messages[1].Content)
	assert.Equal(t, FunctionName, got.ToolChoice.Function.Name)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, FunctionName, got.Tools[0].Function.Name)
}

func TestOpenAIClientAcceptsLegacyFunctionCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"function_call":{"name":"extract_foods","arguments":"{}"}}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", WithBaseURL(srv.URL))
	args, err := c.CallFunction(context.Background(), FunctionCall{Name: FunctionName})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(args))
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"status", http.StatusTooManyRequests, `{"error":"rate limited"}`, "status 429"},
		{"bad json", http.StatusOK, `not json`, "JSON decode error"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"wrong function", http.StatusOK, `{"choices":[{"message":{"tool_calls":[{"function":{"name":"other","arguments":"{}"}}]}}]}`, "did not call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient("k", WithBaseURL(srv.URL))
			_, err := c.CallFunction(context.Background(), FunctionCall{Name: FunctionName})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	c := NewOpenAIClient("")
	_, err := c.CallFunction(context.Background(), FunctionCall{Name: FunctionName})
	assert.ErrorContains(t, err, "API key is missing")
}
