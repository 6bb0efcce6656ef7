package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"prboard/internal/quota"
)

// CallObserver is told the outcome of every API call: "ok" or a Kind string.
type CallObserver func(op, outcome string, elapsed time.Duration)

// Client is the GitHub API client for a single authenticated identity.
// It never retries; every failure is returned to the caller as an *Error.
type Client struct {
	transport Transport
	quota     *quota.Tracker
	limiter   *rate.Limiter
	validate  *validator.Validate
	observe   CallObserver
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Client)

// WithPacing spaces calls out to at most rps per second. rps <= 0 disables pacing.
func WithPacing(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observe = o }
}

// WithTimeout bounds the read calls: search, check runs, organizations and
// viewer. Action calls are never given a deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient builds a client. tracker may be nil, in which case rate-limit
// telemetry is dropped.
func NewClient(t Transport, tracker *quota.Tracker, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		transport: t,
		quota:     tracker,
		validate:  validator.New(),
		observe:   func(string, string, time.Duration) {},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(ctx context.Context, op string, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransport, Op: op, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.transport.Do(ctx, req)
	if resp != nil {
		if rl, ok := parseRateLimit(resp.Header); ok && c.quota != nil {
			c.quota.Record(rl)
		}
	}
	if err != nil {
		err = &Error{Kind: KindTransport, Op: op, Err: err}
	} else {
		err = classify(op, resp)
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		c.logger.Warn("api call failed",
			zap.String("op", op),
			zap.String("path", req.Path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("api call",
			zap.String("op", op),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed),
		)
	}
	c.observe(op, outcome, elapsed)
	return resp, err
}

// classify maps an HTTP status to the error taxonomy.
func classify(op string, resp *Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	e := &Error{Op: op, StatusCode: code, Message: apiMessage(resp.Body)}
	switch {
	case code == http.StatusUnauthorized:
		e.Kind = KindAuthInvalid
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case code == http.StatusForbidden &&
		(resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""):
		e.Kind = KindRateLimited
	case code >= 500:
		e.Kind = KindTransport
	default:
		e.Kind = KindRejected
	}
	return e
}

// apiMessage extracts the "message" field GitHub puts in error bodies.
func apiMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	return trimOutput(body)
}

func (c *Client) decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return nil
}
