package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
)

// FunctionCall is a request that forces the model to answer by calling one
// function.
type FunctionCall struct {
	System      string
	User        string
	Name        string
	Description string
	Parameters  map[string]any
}

// Completer runs a forced function call and returns its raw JSON arguments.
type Completer interface {
	CallFunction(ctx context.Context, call FunctionCall) (json.RawMessage, error)
}

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ClientOption configures an OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) ClientOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel selects the chat model.
func WithModel(m string) ClientOption {
	return func(c *OpenAIClient) {
		if m != "" {
			c.model = m
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *OpenAIClient) { c.httpClient = h }
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(apiKey string, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallFunction sends one chat completion with temperature 0 and a forced
// tool call, and returns the tool call's arguments.
func (c *OpenAIClient) CallFunction(ctx context.Context, call FunctionCall) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is missing")
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: call.System},
			{Role: "user", Content: call.User},
		},
		Tools: []tool{{
			Type: "function",
			Function: toolFunction{
				Name:        call.Name,
				Description: call.Description,
				Parameters:  call.Parameters,
			},
		}},
		ToolChoice: toolChoice{
			Type:     "function",
			Function: toolChoiceFunction{Name: call.Name},
		},
		Temperature: 0,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("request marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("JSON decode error: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	msg := result.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == call.Name {
			return json.RawMessage(tc.Function.Arguments), nil
		}
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Name == call.Name {
		return json.RawMessage(msg.FunctionCall.Arguments), nil
	}
	return nil, fmt.Errorf("response did not call %s", call.Name)
}

// API request/response types

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []tool        `json:"tools"`
	ToolChoice  toolChoice    `json:"tool_choice"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type toolChoice struct {
	Type     string             `json:"type"`
	Function toolChoiceFunction `json:"function"`
}

type toolChoiceFunction struct {
	Name string `json:"name"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function functionCall `json:"function"`
			} `json:"tool_calls"`
			FunctionCall *functionCall `json:"function_call"`
		} `json:"message"`
	} `json:"choices"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
