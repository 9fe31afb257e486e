package refclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/duel-referee/pkg/gamedto"
)

// Client talks to a referee gateway over HTTP. Used by watcherd and by any
// external party that wants to nudge expirable sessions.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial overrides the transport dial function. 인메모리 리스너 테스트용.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListActive returns the ids of sessions that may still transition.
func (c *Client) ListActive(ctx context.Context) ([]uint64, error) {
	var resp gamedto.GameListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/games", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// GetGame fetches the public view of one session.
func (c *Client) GetGame(ctx context.Context, id uint64) (*gamedto.SessionView, error) {
	var v gamedto.SessionView
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/games/"+strconv.FormatUint(id, 10), nil, &v, true); err != nil {
		return nil, err
	}
	return &v, nil
}

// Expire asks the referee to terminate an overdue session. A conflict answer
// means the deadline has not elapsed yet; callers treat that as a no-op.
func (c *Client) Expire(ctx context.Context, id uint64) (*gamedto.SessionView, error) {
	var v gamedto.SessionView
	err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/games/"+strconv.FormatUint(id, 10)+"/expire", nil, &v, false)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// APIError carries the referee's structured error answer.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("referee api error: status=%d code=%s msg=%s", e.Status, e.Code, e.Msg)
}

// IsConflict reports whether err is a 409 answer from the referee.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == fasthttp.StatusConflict
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status >= 200 && status < 300 {
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}

		apiErr := &APIError{Status: status}
		var body gamedto.ErrorResponse
		if err := json.Unmarshal(resp.Body(), &body); err == nil {
			apiErr.Code = body.Code
			apiErr.Msg = body.Message
		}
		if attempt == attempts || !shouldRetryStatus(status) {
			return apiErr
		}
		lastErr = apiErr
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
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
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
