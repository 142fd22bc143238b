package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 32 << 20

// Client sends requests to one upstream through a circuit breaker,
// retrying retryable failures with exponential backoff.
type Client struct {
	Service     string
	HTTP        *http.Client
	Breaker     *gobreaker.CircuitBreaker
	Retries     int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// NewClient returns a client with one retry and a breaker named after service.
func NewClient(service string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Service:     service,
		HTTP:        &http.Client{Timeout: timeout},
		Breaker:     NewBreaker(service, log),
		Retries:     1,
		BackoffBase: 200 * time.Millisecond,
		BackoffCap:  2 * time.Second,
	}
}

// Do builds and sends a request, returning the body of a 2xx response.
// build is called once per attempt so request bodies can be replayed.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := ExponentialBackoff(attempt-1, c.BackoffBase, c.BackoffCap)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		body, err := c.once(ctx, build)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	run := func() (interface{}, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			se := &StatusError{Service: c.Service, Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(b)), 512)}
			if IsRetryableHTTPStatus(resp.StatusCode) {
				return nil, se
			}
			// Client errors are not upstream health problems; keep them out of the breaker's failure count.
			return se, nil
		}
		return b, nil
	}

	var (
		out interface{}
		err error
	)
	if c.Breaker != nil {
		out, err = c.Breaker.Execute(run)
	} else {
		out, err = run()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %w", c.Service, ErrUnavailable, err)
		}
		return nil, err
	}
	if se, ok := out.(*StatusError); ok {
		return nil, se
	}
	return out.([]byte), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
