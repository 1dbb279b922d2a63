// Package apierr defines the failure taxonomy shared by the gateway, the
// session manager and the domain store. Every failure reported to a caller
// is one of four kinds and matches the corresponding sentinel via errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuth       = errors.New("authentication failed")
	ErrValidation = errors.New("validation failed")
	ErrNetwork    = errors.New("network failure")
	ErrServer     = errors.New("server error")
)

// Kind classifies an Error.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindValidation
	KindNetwork
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindValidation:
		return ErrValidation
	case KindNetwork:
		return ErrNetwork
	case KindServer:
		return ErrServer
	}
	return nil
}

// Error is a classified failure. Status is the HTTP status when the failure
// came from a response, zero otherwise. Detail is the human readable message,
// server-supplied when available.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func Auth(op, detail string) *Error {
	return &Error{Kind: KindAuth, Op: op, Detail: detail}
}

func Validation(op, detail string) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Server builds a ServerError for a non-2xx response. An empty detail is
// replaced with "API error: <status>".
func Server(op string, status int, detail string) *Error {
	if detail == "" {
		detail = fmt.Sprintf("API error: %d", status)
	}
	return &Error{Kind: KindServer, Op: op, Status: status, Detail: detail}
}

// FromStatus classifies a non-2xx HTTP status. 401 and 403 are auth failures,
// everything else is a server error.
func FromStatus(op string, status int, detail string) *Error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if detail == "" {
			detail = http.StatusText(status)
		}
		return &Error{Kind: KindAuth, Op: op, Status: status, Detail: detail}
	}
	return Server(op, status, detail)
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsUnauthorized reports whether err carries a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
