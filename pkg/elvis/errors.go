// Package elvis is a client for the Elvis DAM REST API. It logs in with
// username and password, keeps whichever authentication artifact the server
// hands out (a session id carried in the URL, or a CSRF token plus auth
// cookie), attaches it to every request, and maps the asset operations
// (search, create, update, move, remove, relations, folders, share links,
// downloads) onto the services/ endpoints.
//
// The server reports most failures in-band as JSON, so operations return a
// decoded Response and callers inspect its keys. Failures that produce no
// usable JSON are returned as typed errors: TransportError for network
// problems, DecodeError for non-JSON bodies, and ServiceError for non-2xx
// responses without a JSON body.
package elvis

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is(err, elvis.ErrTransport) to check.
var (
	ErrTransport     = errors.New("elvis: transport failure")
	ErrDecode        = errors.New("elvis: response is not a JSON object")
	ErrNotLoggedIn   = errors.New("elvis: not logged in")
	ErrLoginRejected = errors.New("elvis: login rejected")
)

// Sentinels for HTTP status classification of non-JSON error responses.
var (
	ErrBadRequest   = errors.New("elvis: bad request")
	ErrUnauthorized = errors.New("elvis: unauthorized")
	ErrForbidden    = errors.New("elvis: forbidden")
	ErrNotFound     = errors.New("elvis: not found")
	ErrConflict     = errors.New("elvis: conflict")
	ErrThrottled    = errors.New("elvis: throttled")
	ErrServerError  = errors.New("elvis: server error")
)

// TransportError reports a request that produced no HTTP response at all:
// connection refused, DNS failure, timeout, cancellation.
type TransportError struct {
	Method   string
	Endpoint string // never includes the session id
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("elvis: %s %s: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap exposes both ErrTransport and the cause, so errors.Is matches
// either ErrTransport or context.DeadlineExceeded.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// DecodeError reports a body that is not a JSON object where one was
// expected. This is distinct from the service answering with a legitimate
// failure object, which decodes fine.
type DecodeError struct {
	StatusCode int
	Snippet    string // leading bytes of the body for debugging
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("elvis: decoding HTTP %d response: %v (body: %q)", e.StatusCode, e.Err, e.Snippet)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// ServiceError wraps a status sentinel with the request id and the raw
// error body of a non-2xx response that carried no JSON.
type ServiceError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *ServiceError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("elvis: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("elvis: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the server declined the request without
// acting on it, so sending it again is safe for any verb.
func isRetryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
