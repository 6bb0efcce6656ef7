package forge

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies API failures for callers.
type Kind int

const (
	// KindAuthInvalid means the credential is missing, expired or revoked.
	// Terminal for the session: re-authenticate, do not retry.
	KindAuthInvalid Kind = iota + 1
	// KindRateLimited means the API budget is exhausted; the caller may wait.
	KindRateLimited
	// KindTransport covers network failures and 5xx responses. Retryable.
	KindTransport
	// KindMalformed means the response could not be decoded or failed validation.
	KindMalformed
	// KindRejected covers every other 4xx and GraphQL-level errors.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindAuthInvalid:
		return "AUTH_INVALID"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindTransport:
		return "TRANSPORT_FAILURE"
	case KindMalformed:
		return "MALFORMED_RESPONSE"
	case KindRejected:
		return "REQUEST_REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Error is returned by every Client call that fails.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrAuthInvalid = &Error{Kind: KindAuthInvalid}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrMalformed   = &Error{Kind: KindMalformed}
	ErrRejected    = &Error{Kind: KindRejected}
)

// ErrNoPullRequests is returned by SearchAssigned when the search matched nothing.
var ErrNoPullRequests = errors.New("no open pull requests assigned to you")

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.StatusCode == 0
}

// Retryable reports whether a user-initiated retry can succeed without
// changing anything.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// KindOf extracts the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
