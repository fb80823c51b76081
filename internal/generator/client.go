package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds a single generator call.
const DefaultTimeout = 30 * time.Second

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxConcurrency int64
	HTTPClient     *http.Client
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	sem     *semaphore.Weighted
	http    *http.Client
}

var _ Generator = (*Client)(nil)

// NewClient creates a Client. Zero values fall back to DefaultTimeout and
// four concurrent calls.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(opts.MaxConcurrency),
		http:    opts.HTTPClient,
	}
}

// Generate sends p and returns the first choice. The timeout covers waiting
// for a concurrency slot as well as the HTTP exchange.
func (c *Client) Generate(ctx context.Context, p Prompt) (*Reply, error) {
	if c.baseURL == "" || c.apiKey == "" || c.model == "" {
		return nil, fmt.Errorf("%w: generator endpoint, key or model not configured", ErrAuth)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.sem.Acquire(callCtx, 1); err != nil {
		return nil, c.ctxError(ctx, err)
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: Messages(p),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil {
			return nil, c.ctxError(ctx, ctxErr)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil {
			return nil, c.ctxError(ctx, ctxErr)
		}
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrUnavailable)
	}

	model := out.Model
	if model == "" {
		model = c.model
	}

	slog.Debug("generator replied",
		"model", model,
		"tokens", out.Usage.TotalTokens,
		"elapsedMs", time.Since(start).Milliseconds(),
		"retry", p.IsRetry(),
	)

	return &Reply{
		Text:       out.Choices[0].Message.Content,
		TokensUsed: out.Usage.TotalTokens,
		Model:      model,
	}, nil
}

// ctxError maps a context failure. Caller cancellation is passed through so
// the pipeline stops; our own deadline becomes ErrTimeout.
func (c *Client) ctxError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	return err
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrAuth, detail)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, detail)
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, detail)
	}
}
