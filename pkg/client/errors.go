package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// backoff wait.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrLagWaitExceeded is returned when the optional overall lag deadline
	// is exceeded while the server keeps reporting high replication lag.
	ErrLagWaitExceeded = errors.New("replication lag wait exceeded")
)

// ErrorKind classifies an API failure. Callers branch on the kind, never on
// concrete error types.
type ErrorKind string

const (
	// KindLag: server replication lag above the declared ceiling. Waits for
	// this kind are proactive and never billed against the retry budget.
	KindLag ErrorKind = "lag"

	// KindRateLimited: the server asked the client to slow down.
	KindRateLimited ErrorKind = "rate_limited"

	// KindReadOnly: the database is in a read-only window.
	KindReadOnly ErrorKind = "read_only"

	// KindNetwork: transport-level I/O failure.
	KindNetwork ErrorKind = "network"

	// KindServer: 5xx response without a decodable API error body.
	KindServer ErrorKind = "server"

	// KindPermission: the session lacks the right to perform the action.
	KindPermission ErrorKind = "permission"

	// KindProtected: the target resource is protected against this action.
	KindProtected ErrorKind = "protected"

	// KindBlocked: the account or IP is blocked or locked.
	KindBlocked ErrorKind = "blocked"

	// KindAssert: a session assertion failed mid-run (logged out, rights
	// revoked, stale token). Cached tokens are invalidated on this kind.
	KindAssert ErrorKind = "assert"

	// KindConflict: an edit or version conflict.
	KindConflict ErrorKind = "conflict"

	// KindNothingToDo: the server reports the action was already performed.
	// Treated as success; surfaced on the response for callers that log it.
	KindNothingToDo ErrorKind = "nothing_to_do"

	// KindHTTP: unexpected HTTP status outside the API error protocol.
	KindHTTP ErrorKind = "http"

	// KindUnknown: an API error code the decoder does not recognize.
	KindUnknown ErrorKind = "unknown"
)

// Transient reports whether the kind is billed against the retry budget and
// retried. Proactive lag waits are handled separately and never billed.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindReadOnly, KindNetwork, KindServer:
		return true
	default:
		return false
	}
}

// Fatal reports whether the kind bypasses the retry budget entirely.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindPermission, KindProtected, KindBlocked, KindAssert, KindConflict, KindHTTP, KindUnknown:
		return true
	default:
		return false
	}
}

// APIError represents a classified API failure with server context.
type APIError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %s error (code %q): %s: %v",
			e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error (code %q): %s", e.Kind, e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
