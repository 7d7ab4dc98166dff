package elvis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CookieKey is the Response key holding the cookies set by the server.
const CookieKey = "cookie"

// maxSnippet bounds the body excerpt kept in DecodeError and ServiceError.
const maxSnippet = 512

// errEmptyBody is the DecodeError cause for a response without content.
var errEmptyBody = errors.New("empty body")

// Response is a decoded JSON object returned by the service. fetch adds the
// cookies set on the response under CookieKey.
type Response map[string]any

// Has reports whether key is present, whatever its value.
func (r Response) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the value of key as a string. Missing keys and JSON null
// yield "", other scalars are formatted.
func (r Response) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Cookies returns the cookie mapping stored under CookieKey. Works for both
// freshly fetched responses and responses restored from the session cache.
func (r Response) Cookies() map[string]string {
	out := make(map[string]string)

	switch v := r[CookieKey].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}

	return out
}

// NotLoggedIn reports whether r is the result Logout returns when this
// client never established a session.
func (r Response) NotLoggedIn() bool {
	status, ok := r["status"].(bool)
	return ok && !status && r.String("message") == notLoggedInMessage
}

// Decode re-decodes r into v, typically a struct with json tags.
func (r Response) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("elvis: re-encoding response: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("elvis: decoding response into %T: %w", v, err)
	}

	return nil
}

// fetch sends a form-encoded POST or a query-string GET to ref, extracts the
// Set-Cookie headers and decodes the JSON object in the body.
func (c *Client) fetch(ctx context.Context, ref string, params url.Values, usePost bool) (Response, error) {
	target, err := c.endpoint(ref)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req := outbound{method: http.MethodGet, target: target}

	if usePost {
		req.method = http.MethodPost
		req.body = []byte(params.Encode())
		req.contentType = "application/x-www-form-urlencoded"
	} else if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}

		target.RawQuery = q.Encode()
	}

	return c.roundTrip(ctx, req)
}

// roundTrip sends req and decodes the response as a JSON object with the
// response cookies injected.
func (c *Client) roundTrip(ctx context.Context, req outbound) (Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.method, Endpoint: req.target.Path, Err: err}
	}

	out, decErr := decodeBody(resp.StatusCode, body)
	if decErr != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, newServiceError(resp, body)
		}

		return nil, decErr
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("service returned error status with JSON body",
			slog.String("endpoint", req.target.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", out.String("message")),
		)
	}

	out[CookieKey] = extractCookies(resp)

	return out, nil
}

// decodeBody decodes the body as one JSON object. Bodies with leading
// non-JSON lines (proxy banners, server notices) are decoded from their
// last non-empty line, which is where the service writes its payload.
func decodeBody(status int, body []byte) (Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &DecodeError{StatusCode: status, Err: errEmptyBody}
	}

	var out Response

	err := json.Unmarshal(trimmed, &out)
	if err != nil {
		line := lastLine(trimmed)
		if lineErr := json.Unmarshal(line, &out); lineErr != nil {
			return nil, &DecodeError{StatusCode: status, Snippet: snippet(body), Err: err}
		}
	}

	if out == nil {
		return nil, &DecodeError{StatusCode: status, Snippet: snippet(body), Err: errors.New("JSON null")}
	}

	return out, nil
}

// lastLine returns the last non-empty line of b.
func lastLine(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if l := bytes.TrimSpace(lines[i]); len(l) > 0 {
			return l
		}
	}

	return nil
}

// extractCookies merges every Set-Cookie of resp into one mapping. Later
// cookies with the same name overwrite earlier ones.
func extractCookies(resp *http.Response) map[string]any {
	out := make(map[string]any)

	for _, ck := range resp.Cookies() {
		out[ck.Name] = ck.Value
	}

	return out
}

func newServiceError(resp *http.Response, body []byte) *ServiceError {
	var reqID string
	if resp.Request != nil {
		reqID = resp.Request.Header.Get(requestIDHeader)
	}

	return &ServiceError{
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
		Message:    snippet(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippet {
		s = s[:maxSnippet]
	}

	return s
}
