package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/dispatcher"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
			flusher.Flush()
		}
	}))
}

func TestGenerateStreamsTextAndUsage(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{}}],"usage":{"prompt_tokens":10,"completion_tokens":2}}`,
		`[DONE]`,
	})
	defer srv.Close()

	c := New(srv.URL, "test-key", 5*time.Second)
	chunks, err := c.Generate(context.Background(), dispatcher.GenerateInput{Model: "gpt-5"})
	require.NoError(t, err)

	var text string
	var usage *dispatcher.UsageChunk
	for ch := range chunks {
		switch v := ch.(type) {
		case *dispatcher.TextChunk:
			text += v.Content
		case *dispatcher.UsageChunk:
			usage = v
		}
	}
	assert.Equal(t, "hello", text)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
}

func TestGenerateSurfacesProviderError(t *testing.T) {
	srv := sseServer(t, []string{
		`{"error":{"message":"context_length_exceeded: too many tokens","code":"context_length_exceeded"}}`,
	})
	defer srv.Close()

	c := New(srv.URL, "test-key", 5*time.Second)
	chunks, err := c.Generate(context.Background(), dispatcher.GenerateInput{Model: "gpt-5"})
	require.NoError(t, err)

	var errChunk *dispatcher.ErrorChunk
	for ch := range chunks {
		if e, ok := ch.(*dispatcher.ErrorChunk); ok {
			errChunk = e
		}
	}
	require.NotNil(t, errChunk)
	assert.Contains(t, errChunk.Message, "context_length_exceeded")
}

func TestGenerateReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad-key", 5*time.Second)
	_, err := c.Generate(context.Background(), dispatcher.GenerateInput{Model: "gpt-5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}
