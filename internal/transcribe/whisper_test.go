package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeUploadsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.m4a", hdr.Filename)
		assert.Equal(t, []byte("audio"), data)

		_, _ = w.Write([]byte(`{"text":" two eggs and toast "}`))
	}))
	defer srv.Close()

	c := NewWhisperClient("key", srv.URL)
	got, err := c.Transcribe(context.Background(), []byte("audio"), "clip.m4a")
	require.NoError(t, err)
	assert.Equal(t, "two eggs and toast", got.Text)
	assert.False(t, got.NoSpeech())
}

func TestTranscribeEmptyTextIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	got, err := NewWhisperClient("key", srv.URL).Transcribe(context.Background(), []byte("a"), "")
	require.NoError(t, err)
	assert.True(t, got.NoSpeech())
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusBadRequest, `{"error":"bad audio"}`},
		{"missing text", http.StatusOK, `{}`},
		{"bad json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewWhisperClient("key", srv.URL).Transcribe(context.Background(), []byte("a"), "")
			assert.Error(t, err)
		})
	}
}
