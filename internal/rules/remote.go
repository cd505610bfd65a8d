package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Remote is an Oracle served over HTTP by another process (see Handler).
type Remote struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Remote)

func WithTimeout(d time.Duration) Option {
	return func(r *Remote) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(r *Remote) { r.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(r *Remote) { r.headers = h }
}

func WithRetry(max int) Option {
	return func(r *Remote) { r.retryMax = max }
}

func NewRemote(baseURL string, opts ...Option) *Remote {
	r := &Remote{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 2 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type applyRequest struct {
	Position Position `json:"position"`
	Move     Move     `json:"move"`
}

type applyResponse struct {
	Position Position `json:"position"`
}

type classifyRequest struct {
	Position Position `json:"position"`
}

type classifyResponse struct {
	Classification Classification `json:"classification"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *Remote) ApplyMove(ctx context.Context, pos Position, mv Move) (Position, error) {
	var resp applyResponse
	if err := r.doJSON(ctx, "/apply", applyRequest{Position: pos, Move: mv}, &resp); err != nil {
		return Position{}, err
	}
	return resp.Position, nil
}

func (r *Remote) Classify(ctx context.Context, pos Position) (Classification, error) {
	var resp classifyResponse
	if err := r.doJSON(ctx, "/classify", classifyRequest{Position: pos}, &resp); err != nil {
		return Classification{}, err
	}
	return resp.Classification, nil
}

func (r *Remote) doJSON(ctx context.Context, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.baseURL + path)
	req.Header.SetContentType("application/json")
	if r.headers != nil {
		for k, v := range r.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, cerr)
		}
		err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == fasthttp.StatusUnprocessableEntity:
			return ErrIllegalMove
		case status == fasthttp.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrInvalidPosition, remoteMessage(resp.Body()))
		case status < 200 || status >= 300:
			lastErr = fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *Remote) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 50 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 50ms, 100ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func remoteMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return truncate(string(body), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
