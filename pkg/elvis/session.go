package elvis

import "net/url"

// Auth transport conventions of the service.
const (
	sessionIDParam = ";jsessionid="
	csrfHeader     = "X-CSRF-TOKEN"
	authCookieName = "authToken"
)

// AuthMode is the authentication scheme in force for a client. It is one of
// NoAuth, SessionCookie or CSRF; the dispatcher switches on the concrete type.
type AuthMode interface {
	authMode()
}

// NoAuth means no login has succeeded yet, or the session was logged out.
type NoAuth struct{}

// SessionCookie carries the server session id, sent as a ;jsessionid= path
// parameter on every request URL.
type SessionCookie struct {
	ID string
}

// CSRF carries a CSRF token and the paired authToken cookie value, sent as
// the X-CSRF-TOKEN header and an authToken cookie.
type CSRF struct {
	Token  string
	Cookie string
}

func (NoAuth) authMode()        {}
func (SessionCookie) authMode() {}
func (CSRF) authMode()          {}

// SessionState is the per-client session. CacheWritten is true only if this
// client wrote the session cache; Logout is a no-op otherwise.
type SessionState struct {
	Mode         AuthMode
	CacheWritten bool
}

// LoggedIn reports whether a usable auth mode is set.
func (s SessionState) LoggedIn() bool {
	_, none := s.Mode.(NoAuth)
	return s.Mode != nil && !none
}

// withSessionID returns a copy of u with the session id appended to the path,
// ahead of any query string.
func withSessionID(u *url.URL, id string) *url.URL {
	out := *u
	out.Path += sessionIDParam + id

	if out.RawPath != "" {
		out.RawPath += sessionIDParam + id
	}

	return &out
}
