package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/shared"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// retryInitialInterval is the first backoff wait; tests shorten it.
var retryInitialInterval = 500 * time.Millisecond

// requester sends JSON requests to one backend with rate limiting and retries.
type requester struct {
	service  string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	maxTries uint
	header   http.Header
	logger   *log.Logger
}

func newRequester(service, baseURL string, deps Deps) *requester {
	cfg := deps.Config.Client

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	tries := cfg.MaxRetries
	if tries == 0 {
		tries = 5
	}

	return &requester{
		service:  service,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   deps.HTTPClient,
		limiter:  rate.NewLimiter(limit, burst),
		maxTries: tries,
		header:   make(http.Header),
		logger:   shared.WithLogger(deps.Logger, "service", service),
	}
}

// statusError is returned for non-2xx responses.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *statusError) Unwrap() error { return shared.ErrAPIRequest }

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do sends method path?query with body encoded as JSON and decodes the response into out.
//
// body and out may be nil. Headers in extra are added after the static headers.
func (r *requester) do(ctx context.Context, method, path string, query url.Values, body, out any, extra http.Header) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		return r.attempt(ctx, method, path, target, payload, extra)
	},
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Debug("retrying request", "method", method, "path", path, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (r *requester) attempt(ctx context.Context, method, path, target string, payload []byte, extra http.Header) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	serr := &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(string(data), 200)}
	if !retryable(resp.StatusCode) {
		return nil, backoff.Permanent(serr)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return nil, errors.Join(serr, backoff.RetryAfter(secs))
	}
	return nil, serr
}

func (r *requester) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = 30 * time.Second
	return b
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
