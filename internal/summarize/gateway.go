// Package summarize is a stateless client for the Gemini generateContent
// endpoint used to summarize note content.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/metrics"
)

const (
	// DefaultEndpoint is the generateContent URL of the summarization model.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
	// DefaultPrompt prefixes the note text when no custom prompt is given.
	DefaultPrompt = "Summarize the following note in a concise manner, capturing the key points:"

	maxOutputTokens = 500
	temperature     = 0.2

	maxErrorPayload = 4 << 10
)

// ErrMissingAPIKey is returned when the client was built without a key.
var ErrMissingAPIKey = errors.New("missing api key for gemini")

// Result is one generated summary.
type Result struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	FinishReason string    `json:"finish_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summarizer generates summaries. Implemented by *Client.
type Summarizer interface {
	Summarize(ctx context.Context, text, customPrompt string) (Result, error)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Client calls the summarization endpoint over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a gateway client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Prompt builds the model prompt: the custom prompt, or DefaultPrompt when
// empty, followed by a blank line and text.
func Prompt(text, customPrompt string) string {
	prefix := customPrompt
	if prefix == "" {
		prefix = DefaultPrompt
	}
	return prefix + "\n\n" + text
}

// Summarize sends exactly one request for text. A response without generated
// parts yields an empty Summary and no error. Failures are *apperr.SummarizationError.
func (c *Client) Summarize(ctx context.Context, text, customPrompt string) (Result, error) {
	start := time.Now()
	res, err := c.summarize(ctx, text, customPrompt)
	status := "ok"
	if err != nil {
		status = "error"
		slog.Error("summarize: request failed", slog.String("error", err.Error()))
	}
	metrics.SummarizeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return res, err
}

func (c *Client) summarize(ctx context.Context, text, customPrompt string) (Result, error) {
	if c.apiKey == "" {
		return Result{}, &apperr.SummarizationError{Err: ErrMissingAPIKey}
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: Prompt(text, customPrompt)}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: maxOutputTokens,
			Temperature:     temperature,
		},
	})
	if err != nil {
		return Result{}, &apperr.SummarizationError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Result{}, &apperr.SummarizationError{Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, &apperr.SummarizationError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &apperr.SummarizationError{Err: redactKey(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
		return Result{}, &apperr.SummarizationError{
			Status:  resp.StatusCode,
			Payload: string(bytes.TrimSpace(payload)),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, &apperr.SummarizationError{Err: fmt.Errorf("decode response: %w", err)}
	}

	res := Result{CreatedAt: c.now().UTC()}
	if len(out.Candidates) > 0 {
		cand := out.Candidates[0]
		res.ID = cand.FinishReason
		res.FinishReason = cand.FinishReason
		if len(cand.Content.Parts) > 0 {
			res.Summary = cand.Content.Parts[0].Text
		}
	}
	return res, nil
}

// redactKey strips the request URL, which carries the api key, from
// transport errors.
func redactKey(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s request: %w", ue.Op, ue.Err)
	}
	return err
}
