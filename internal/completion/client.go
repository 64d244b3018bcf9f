// Package completion is a client for a llama.cpp-style tokenizer and completion server.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/metrics"
	"github.com/persistorai/threadline/internal/models"
)

const (
	defaultTimeout  = 5 * time.Minute
	maxResponseSize = 10 << 20
)

var tracer = otel.Tracer("threadline/completion")

// Compile-time check: *Client must satisfy domain.Completer.
var _ domain.Completer = (*Client)(nil)

// Config controls how the client reaches the completion server.
type Config struct {
	BaseURL string
	// AllowRemote lifts the loopback-only dial restriction.
	AllowRemote bool
	Timeout     time.Duration
	// RateLimit caps requests per second. Zero disables pacing.
	RateLimit float64
}

// Client talks to the /tokenize, /completion and /health endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *breaker
	log     *logrus.Logger
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens *[]int `json:"tokens"`
}

type completionRequest struct {
	Prompt      []int  `json:"prompt"`
	NPredict    int    `json:"n_predict"`
	Grammar     string `json:"grammar,omitempty"`
	CachePrompt bool   `json:"cache_prompt"`
}

type completionResponse struct {
	Content      *string `json:"content"`
	StopType     string  `json:"stop_type"`
	StoppedEOS   bool    `json:"stopped_eos"`
	StoppedWord  bool    `json:"stopped_word"`
	StoppedLimit bool    `json:"stopped_limit"`
}

// New creates a Client. Unless cfg.AllowRemote is set, connections are
// restricted to hosts that resolve to loopback addresses.
func New(cfg Config, log *logrus.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport.

	if !cfg.AllowRemote {
		transport.DialContext = loopbackDialer
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: transport},
		limiter: limiter,
		breaker: newBreaker(cbFailureThreshold, cbCooldown),
		log:     log,
	}
}

func loopbackDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving completion host: %w", err)
	}

	for _, ip := range ips {
		if !ip.IP.IsLoopback() {
			return nil, errors.New("completion service connections restricted to localhost")
		}
	}

	return (&net.Dialer{}).DialContext(ctx, network, addr)
}

// Tokenize returns the token ids of text.
func (c *Client) Tokenize(ctx context.Context, text string) ([]int, error) {
	ctx, span := tracer.Start(ctx, "completion.Tokenize",
		trace.WithAttributes(attribute.Int("prompt.bytes", len(text))),
	)
	defer span.End()

	var resp tokenizeResponse
	if err := c.post(ctx, "/tokenize", tokenizeRequest{Content: text}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	if resp.Tokens == nil {
		return nil, fmt.Errorf("%w: tokenize response has no tokens", models.ErrCompletionService)
	}

	span.SetAttributes(attribute.Int("prompt.tokens", len(*resp.Tokens)))

	return *resp.Tokens, nil
}

// Complete generates a continuation of req.Prompt.
func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
	ctx, span := tracer.Start(ctx, "completion.Complete",
		trace.WithAttributes(
			attribute.Int("prompt.tokens", len(req.Prompt)),
			attribute.Int("n_predict", req.MaxTokens),
		),
	)
	defer span.End()

	body := completionRequest{
		Prompt:      req.Prompt,
		NPredict:    req.MaxTokens,
		Grammar:     req.Grammar,
		CachePrompt: true,
	}

	var resp completionResponse
	if err := c.post(ctx, "/completion", body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	if resp.Content == nil {
		return nil, fmt.Errorf("%w: completion response has no content", models.ErrCompletionService)
	}

	stop := stopReason(&resp)
	span.SetAttributes(attribute.String("stop_type", string(stop)))

	return &models.CompletionResult{Content: *resp.Content, StopReason: stop}, nil
}

func stopReason(resp *completionResponse) models.StopReason {
	if resp.StopType != "" {
		return models.StopReason(resp.StopType)
	}

	switch {
	case resp.StoppedEOS:
		return models.StopEOS
	case resp.StoppedWord:
		return models.StopWord
	case resp.StoppedLimit:
		return models.StopLimit
	default:
		return models.StopNone
	}
}

// Health reports whether the server is up and has its model loaded.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling /health: %w", models.ErrCompletionService, err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: /health returned status %d", models.ErrCompletionService, resp.StatusCode)
	}

	return nil
}

// post sends a JSON request through the rate limiter and circuit breaker and decodes the reply into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	if err := c.breaker.allow(); err != nil {
		return err
	}

	start := time.Now()
	status, err := c.doPost(ctx, path, in, out)

	metrics.CompletionDuration.WithLabelValues(path, status).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil {
			c.breaker.failure()
		}

		c.log.WithError(err).WithField("endpoint", path).Debug("completion request failed")

		return err
	}

	c.breaker.success()

	return nil
}

func (c *Client) doPost(ctx context.Context, path string, in, out any) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "error", fmt.Errorf("marshaling %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "error", fmt.Errorf("creating %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "error", fmt.Errorf("%w: calling %s: %w", models.ErrCompletionService, path, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		// Drain body so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return status, fmt.Errorf("%w: %s returned status %d", models.ErrCompletionService, path, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return status, fmt.Errorf("%w: decoding %s response: %w", models.ErrCompletionService, path, err)
	}

	return status, nil
}
