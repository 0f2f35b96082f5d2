package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/folio/internal/apperr"
)

type captured struct {
	calls atomic.Int32
	key   atomic.Value
	body  atomic.Value
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		c.key.Store(r.URL.Query().Get("key"))
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			c.body.Store(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const okResponse = `{"candidates":[{"content":{"parts":[{"text":"A short summary."},{"text":"ignored"}]},"finishReason":"STOP"}]}`

func TestSummarize_RequestShape(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, okResponse)
	client := NewClient("k-123", WithEndpoint(srv.URL))
	client.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

	res, err := client.Summarize(context.Background(), "short text", "")
	require.NoError(t, err)

	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, "k-123", c.key.Load())

	req := c.body.Load().(generateRequest)
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 1)
	assert.Equal(t, DefaultPrompt+"\n\nshort text", req.Contents[0].Parts[0].Text)
	assert.Equal(t, 500, req.GenerationConfig.MaxOutputTokens)
	assert.InDelta(t, 0.2, req.GenerationConfig.Temperature, 1e-9)

	assert.Equal(t, Result{
		ID:           "STOP",
		Summary:      "A short summary.",
		FinishReason: "STOP",
		CreatedAt:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}, res)
}

func TestPrompt_DiffersOnlyInPrefix(t *testing.T) {
	def := Prompt("short text", "")
	custom := Prompt("short text", "be terse")

	assert.NotEqual(t, def, custom)
	assert.Equal(t, strings.TrimPrefix(def, DefaultPrompt), strings.TrimPrefix(custom, "be terse"))
	assert.True(t, strings.HasPrefix(custom, "be terse\n\n"))
}

func TestSummarize_CustomPromptSent(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, okResponse)
	_, err := NewClient("k", WithEndpoint(srv.URL)).Summarize(context.Background(), "short text", "be terse")
	require.NoError(t, err)

	req := c.body.Load().(generateRequest)
	assert.Equal(t, "be terse\n\nshort text", req.Contents[0].Parts[0].Text)
}

func TestSummarize_NoPartsIsEmptySummary(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
		"empty object":  `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, body)
			res, err := NewClient("k", WithEndpoint(srv.URL)).Summarize(context.Background(), "x", "")
			require.NoError(t, err)
			assert.Empty(t, res.Summary)
		})
	}
}

func TestSummarize_RemoteErrorCarriesStatusAndPayload(t *testing.T) {
	srv, c := newServer(t, http.StatusTooManyRequests, `{"error":{"message":"quota"}}`)
	_, err := NewClient("k", WithEndpoint(srv.URL)).Summarize(context.Background(), "x", "")

	var se *apperr.SummarizationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.Equal(t, `{"error":{"message":"quota"}}`, se.Payload)
	assert.Equal(t, `gemini api error: 429 {"error":{"message":"quota"}}`, err.Error())
	assert.Equal(t, int32(1), c.calls.Load(), "no retry")
}

func TestSummarize_TransportErrorIsGeneric(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, okResponse)
	srv.Close()

	_, err := NewClient("secret-key", WithEndpoint(srv.URL)).Summarize(context.Background(), "x", "")
	var se *apperr.SummarizationError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.Status)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to generate summary"))
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestSummarize_MissingKey(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, okResponse)
	_, err := NewClient("", WithEndpoint(srv.URL)).Summarize(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, c.calls.Load())
}

func TestSummarize_HonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewClient("k", WithEndpoint(srv.URL)).Summarize(ctx, "x", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
