package forge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"prboard/internal/model"
)

// Request is a single GitHub API call. Path is relative to the API root,
// e.g. "/graphql" or "/repos/acme/gateway/pulls/1/update-branch".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte // JSON; nil for no body
}

// Response is the raw result of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs requests against the API with the user's credential.
// A non-nil error means no HTTP response was obtained.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// parseRateLimit reads the X-RateLimit-* headers. ok is false when the
// response carries no telemetry.
func parseRateLimit(h http.Header) (model.RateLimit, bool) {
	if h == nil {
		return model.RateLimit{}, false
	}
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return model.RateLimit{}, false
	}
	rl := model.RateLimit{
		Resource:  h.Get("X-RateLimit-Resource"),
		Remaining: remaining,
	}
	if limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit")); err == nil {
		rl.Limit = limit
	}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}
	return rl, true
}
