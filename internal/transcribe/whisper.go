package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
)

// Transcript is the text recognised in a recording.
type Transcript struct {
	Text string
}

// NoSpeech reports whether nothing but whitespace was recognised. It is a
// normal outcome the caller must handle, not an error.
func (t Transcript) NoSpeech() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Transcript, error)
}

// WhisperClient uploads audio to the transcription API.
type WhisperClient struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewWhisperClient creates a transcription client. baseURL may be empty.
func NewWhisperClient(apiKey, baseURL string) *WhisperClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &WhisperClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "en",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe sends the recording as multipart form data. filename carries the
// container extension (e.g. "recording.m4a").
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (Transcript, error) {
	if c.apiKey == "" {
		return Transcript{}, fmt.Errorf("OpenAI API key is missing")
	}
	if filename == "" {
		filename = "recording.m4a"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return Transcript{}, fmt.Errorf("form creation failed: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcript{}, fmt.Errorf("form write failed: %w", err)
	}
	fields := map[string]string{
		"model":           defaultModel,
		"language":        c.language,
		"response_format": "json",
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return Transcript{}, fmt.Errorf("form write failed: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return Transcript{}, fmt.Errorf("form close failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Transcript{}, fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, fmt.Errorf("JSON decode error: %w", err)
	}
	if result.Text == nil {
		return Transcript{}, fmt.Errorf("no transcription text in response")
	}

	return Transcript{Text: strings.TrimSpace(*result.Text)}, nil
}
