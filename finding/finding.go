// Package finding defines the structured result envelope every
// orchestrator operation returns (spec §3.4, §7): a status, an optional
// machine-readable error kind, a human-readable message, and an
// analysis-specific payload.
package finding

import "fmt"

// ErrorKind classifies why an analysis failed. See spec §7.
type ErrorKind string

const (
	// ErrNone marks a successful Envelope; never set alongside Message.
	ErrNone ErrorKind = ""
	// ErrFetchFailed means the trace source returned an error.
	ErrFetchFailed ErrorKind = "fetch_failed"
	// ErrInvalidInput means the caller supplied a malformed id or option.
	ErrInvalidInput ErrorKind = "invalid_input"
	// ErrQualityRejected means a required trace failed validation.
	ErrQualityRejected ErrorKind = "quality_rejected"
	// ErrInsufficientData means a population-based analysis had too few
	// traces to compute a result.
	ErrInsufficientData ErrorKind = "insufficient_data"
	// ErrInternal covers cancellation and unexpected conditions.
	ErrInternal ErrorKind = "internal"
)

// Envelope wraps an analysis-specific payload of type T with the common
// success/error envelope every orchestrator operation returns.
type Envelope[T any] struct {
	Status    string    `json:"status"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Payload   T         `json:"payload"`
}

// Ok builds a successful Envelope.
func Ok[T any](payload T) Envelope[T] {
	return Envelope[T]{Status: "success", Payload: payload}
}

// Err builds a failed Envelope with no payload.
func Err[T any](kind ErrorKind, format string, args ...any) Envelope[T] {
	return Envelope[T]{Status: "error", ErrorKind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsOK reports whether the envelope represents success.
func (e Envelope[T]) IsOK() bool { return e.Status == "success" }

// Cancelled builds the ErrInternal envelope used whenever a cancellation
// token fires mid-analysis (spec §3.5, §5).
func Cancelled[T any]() Envelope[T] {
	return Err[T](ErrInternal, "analysis cancelled")
}
