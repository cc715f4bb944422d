package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Condition is the decoded outcome of a response body: an API error, a
// soft-success marker, or nil for plain success. The core only classifies
// conditions; it never interprets messages semantically.
type Condition struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// CursorParam is one continuation key/value pair.
type CursorParam struct {
	Key   string
	Value string
}

// Cursor is the opaque continuation extracted from a page response. Its
// parameters are merged verbatim into the next page request and replaced
// wholesale each iteration. An absent cursor terminates pagination.
type Cursor []CursorParam

// ResponseDecoder is the wire-format boundary supplied by the caller. The
// retry and pagination logic is independent of the concrete format; see
// pkg/wikixml for the default XML implementation.
type ResponseDecoder interface {
	// DecodeError classifies the response body. Returns nil when the body
	// carries no error or soft-success condition.
	DecodeError(body []byte) *Condition

	// DecodeContinuation extracts the continuation cursor, or nil when the
	// listing is exhausted.
	DecodeContinuation(body []byte) Cursor
}

// TokenDecoder is implemented by decoders that can extract action tokens
// from a token-query response.
type TokenDecoder interface {
	DecodeToken(body []byte, kind string) (string, bool)
}

// WarningsDecoder is implemented by decoders that can extract non-fatal
// server warnings. Warnings are logged, never surfaced as errors.
type WarningsDecoder interface {
	DecodeWarnings(body []byte) []string
}

// LagHeaderFunc extracts the server-reported replication lag from response
// headers. The second return is false when the header is absent.
type LagHeaderFunc func(http.Header) (time.Duration, bool)

// RetryAfterFunc extracts the server-suggested wait from response headers.
type RetryAfterFunc func(http.Header) (time.Duration, bool)

// DefaultLagHeader reads the X-Database-Lag header (seconds).
func DefaultLagHeader(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("X-Database-Lag"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// DefaultRetryAfter reads the Retry-After header (delay-seconds form only;
// HTTP-date values are ignored).
func DefaultRetryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
