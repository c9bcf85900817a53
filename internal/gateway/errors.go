package gateway

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind classifies gateway failures.
type Kind int

const (
	// KindUnavailable means the backend channel is closed or unreachable.
	KindUnavailable Kind = iota + 1
	// KindTimeout means no response arrived within the call timeout.
	KindTimeout
	// KindProtocol means the response could not be decoded.
	KindProtocol
	// KindBackend means the backend answered with status "error".
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is against a *Error of the matching kind.
var (
	ErrUnavailable = errors.New("inference backend unavailable")
	ErrTimeout     = errors.New("inference backend timed out")
	ErrProtocol    = errors.New("inference backend protocol error")
	ErrBackend     = errors.New("inference backend error")
	ErrClosed      = errors.New("gateway closed")
)

// Error is returned by every gateway operation.
type Error struct {
	Kind    Kind
	Op      string // generate, research, get_facts, query_memory
	Message string
	Raw     string // undecodable payload, set for KindProtocol
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("gateway %s (%s): %s", e.Kind, e.Op, e.Message)
	}
	if e.Raw != "" {
		msg = fmt.Sprintf("%s (raw payload: %q)", msg, truncate(e.Raw, 512))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrProtocol:
		return e.Kind == KindProtocol
	case ErrBackend:
		return e.Kind == KindBackend
	}
	return false
}

// IsRetriable reports whether a caller may reasonably retry the call.
// Only timeouts qualify; the other kinds fail the same way on a second try.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// KindOf returns the kind of a gateway error, or 0.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

func unavailable(msg string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: err}
}

func protocol(msg, raw string, err error) *Error {
	return &Error{Kind: KindProtocol, Message: msg, Raw: raw, Err: err}
}

// transportError maps a transport failure observed under ctx to a gateway error.
func transportError(ctx context.Context, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "no response before deadline", Err: err}
	}
	return unavailable("round trip failed", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
