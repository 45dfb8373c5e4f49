package sailthru

import (
	"fmt"
	"strings"

	httpclient "github.com/natserract/sailthru/pkg/http"
)

// ErrUnsupportedScheme is returned by New when StrictScheme is set and the
// API URL is neither http nor https.
var ErrUnsupportedScheme = httpclient.ErrUnsupportedScheme

// TransportError reports a request that never produced a response:
// connection failures, timeouts, malformed URLs, unreadable bodies.
type TransportError struct {
	Method string
	Action Action
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sailthru: %s %s: transport failure: %v", e.Method, e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SerializationError reports call parameters that could not be encoded as JSON.
// No request is sent when it is returned.
type SerializationError struct {
	Action Action
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("sailthru: %s: failed to encode parameters: %v", e.Action, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ParseError reports a response body the handler could not parse.
type ParseError struct {
	Format     string
	StatusCode int
	Body       string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sailthru: failed to parse %s response: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// APIError is a non-2xx response. Code and Message are filled from the
// service's {"error": ..., "errormsg": ...} body when present.
type APIError struct {
	StatusCode int
	Code       int64
	Message    string
	Body       string
	Response   Value
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sailthru: api error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sailthru: api error (status %d): %s", e.StatusCode, e.Body)
}

func snippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
