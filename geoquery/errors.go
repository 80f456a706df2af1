package geoquery

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a query failed.
type FailureKind int

const (
	// AuthExpired means the credential was rejected; every later call will fail the same way.
	AuthExpired FailureKind = iota + 1
	// Transient covers timeouts, connection failures and server errors.
	Transient
	// MalformedResponse means the upstream answered but not with the expected structure.
	MalformedResponse
)

func (k FailureKind) String() string {
	switch k {
	case AuthExpired:
		return "auth_expired"
	case Transient:
		return "transient"
	case MalformedResponse:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrAuthExpired       = errors.New("credential rejected or expired")
	ErrTransient         = errors.New("transient upstream failure")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// QueryError is returned by every Querier in this package. It matches the
// sentinel errors above through errors.Is.
type QueryError struct {
	Kind     FailureKind
	Provider string
	Status   int
	Err      error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s query failed (%s)", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.Kind == AuthExpired
	case ErrTransient:
		return e.Kind == Transient
	case ErrMalformedResponse:
		return e.Kind == MalformedResponse
	}
	return false
}

// KindOf extracts the failure kind from err, or 0 when err did not come
// from a Querier.
func KindOf(err error) FailureKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return 0
}

func malformed(provider string, format string, args ...any) *QueryError {
	return &QueryError{Kind: MalformedResponse, Provider: provider, Err: fmt.Errorf(format, args...)}
}
