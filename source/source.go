// Package source defines the TraceSource collaborator boundary (spec
// §4.1, §6): the engine depends only on this interface, never on a
// concrete cloud SDK. Credentials are an explicit parameter on every
// call — the teacher's reference implementation threads them through a
// thread-local; spec §9 calls that out explicitly as a design point to
// not carry over.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/srelabs/trace-engine/trace"
)

// Credentials is an opaque caller credential handle. The engine never
// interprets it; it is passed through to TraceSource untouched (spec
// §4.9: "a caller credential handle ... passed to C1 and never
// interpreted by the engine").
type Credentials struct {
	Token string
	Attrs map[string]string
}

// Failure classifies why a TraceSource call failed (spec §4.1).
type Failure string

const (
	FailureNotFound           Failure = "not_found"
	FailureUnauthenticated    Failure = "unauthenticated"
	FailurePermissionDenied   Failure = "permission_denied"
	FailureTransient          Failure = "transient"
	FailureMalformed          Failure = "malformed"
)

// Error wraps a TraceSource failure with its classification. Components
// above the adapter boundary switch on Failure via errors.As, never on
// the adapter's own error types.
type Error struct {
	Failure Failure
	TraceID string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source: %s %s: %v", e.Failure, e.TraceID, e.Err)
	}
	return fmt.Sprintf("source: %s %s", e.Failure, e.TraceID)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is one a caller might
// productively retry (spec §4.1: "transient ... caller decides retry").
func (e *Error) Transient() bool { return e.Failure == FailureTransient }

// IsNotFound is a convenience matcher for the common case.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Failure == FailureNotFound
}

// Filter is an opaque, adapter-specific filter string (spec §6): the
// grammar is the same as the Cloud Trace v1 filter language but the
// engine never parses it, only builds and passes it through.
type Filter string

// TraceSource is the polymorphic capability set the engine depends on
// (spec §4.1). Implementations normalize both unix and ISO timestamps on
// output and must prefer unix when both are present.
type TraceSource interface {
	// FetchOne resolves a single trace id to a normalized trace.Trace.
	FetchOne(ctx context.Context, project, traceID string, creds Credentials) (trace.Trace, error)
	// ListIDs returns up to limit trace ids matching filter.
	ListIDs(ctx context.Context, project string, filter Filter, limit int, creds Credentials) ([]string, error)
}
