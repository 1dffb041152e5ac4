// Package faults defines the error taxonomy shared by the controller and
// threat-intelligence clients, the action catalog and the dispatch loop.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// Kind classifies a failure for reporting purposes.
type Kind string

const (
	// KindTransportTimeout means the remote side did not answer within budget.
	KindTransportTimeout Kind = "TRANSPORT_TIMEOUT"
	// KindTransportUnreachable means no connection could be established.
	KindTransportUnreachable Kind = "TRANSPORT_UNREACHABLE"
	// KindRemoteError means the remote side answered with a non-2xx status.
	KindRemoteError Kind = "REMOTE_ERROR"
	// KindConfigurationMissing means a required setting (e.g. an API key) is absent.
	KindConfigurationMissing Kind = "CONFIGURATION_MISSING"
	// KindArgumentInvalid means an invocation failed validation.
	KindArgumentInvalid Kind = "ARGUMENT_INVALID"
	// KindPolicyDenied means a guard rule refused the invocation.
	KindPolicyDenied Kind = "POLICY_DENIED"
	// KindTurnBudgetExceeded means a turn ran out of action executions.
	KindTurnBudgetExceeded Kind = "TURN_BUDGET_EXCEEDED"
	// KindUnknown is the catch-all.
	KindUnknown Kind = "UNKNOWN"
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "controller.list_rules".
	Op string
	// Status and Body are set for KindRemoteError.
	Status int
	Body   string
	// Message overrides the rendered text when the underlying error is nil.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Kind == KindRemoteError && e.Status != 0:
		msg = fmt.Sprintf("remote returned %d", e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	case e.Message != "":
		msg = e.Message
	case e.Err != nil:
		msg = e.Err.Error()
	default:
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so sentinels like
// ErrTurnBudgetExceeded compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Status == 0 && t.Err == nil && t.Kind == e.Kind
}

// Detail returns the human text without the Op prefix.
func (e *Error) Detail() string {
	bare := *e
	bare.Op = ""
	return bare.Error()
}

// New builds a classified error with a fixed message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Remote builds a KindRemoteError for a non-2xx response.
func Remote(op string, status int, body string) *Error {
	return &Error{Kind: KindRemoteError, Op: op, Status: status, Body: body}
}

// KindOf returns the Kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}

// FromTransport classifies an error returned by an HTTP round trip.
// Already classified errors are returned unchanged.
func FromTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if IsTimeout(err) {
		return &Error{Kind: KindTransportTimeout, Op: op, Err: err}
	}
	if IsUnreachable(err) {
		return &Error{Kind: KindTransportUnreachable, Op: op, Err: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsUnreachable reports whether err means the peer could not be reached:
// connection refused or reset, no route, or an unresolvable host.
func IsUnreachable(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var inner *net.OpError
		return errors.As(urlErr.Err, &inner) && inner.Op == "dial"
	}
	return false
}
