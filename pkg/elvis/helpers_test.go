package elvis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/syahrul84/ElvisAPI/pkg/sessioncache"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// seenRequest is what the fake service recorded about one request.
type seenRequest struct {
	Method   string
	Path     string // as received, including any ;jsessionid suffix
	RawQuery string
	Form     url.Values
	Header   http.Header
}

// fakeService is a minimal Elvis server. Routes are keyed by path with the
// ;jsessionid suffix stripped.
type fakeService struct {
	srv    *httptest.Server
	mu     sync.Mutex
	seen   []seenRequest
	routes map[string]http.HandlerFunc
}

func newFakeService(t *testing.T, routes map[string]http.HandlerFunc) *fakeService {
	t.Helper()

	fs := &fakeService{routes: routes}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.srv.Close)

	return fs
}

func (fs *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
	} else {
		_ = r.ParseForm()
	}

	fs.mu.Lock()
	fs.seen = append(fs.seen, seenRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Form:     r.Form,
		Header:   r.Header.Clone(),
	})
	fs.mu.Unlock()

	route, _, _ := strings.Cut(r.URL.Path, sessionIDParam)

	h, ok := fs.routes[route]
	if !ok {
		http.NotFound(w, r)
		return
	}

	h(w, r)
}

// requests returns the recorded requests for a route.
func (fs *fakeService) requests(route string) []seenRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []seenRequest

	for _, r := range fs.seen {
		if p, _, _ := strings.Cut(r.Path, sessionIDParam); p == route {
			out = append(out, r)
		}
	}

	return out
}

func (fs *fakeService) last(t *testing.T, route string) seenRequest {
	t.Helper()

	reqs := fs.requests(route)
	require.NotEmpty(t, reqs, "no request to %s", route)

	return reqs[len(reqs)-1]
}

// jsonHandler answers with a fixed JSON body.
func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// sessionLogin answers a login with a session id.
func sessionLogin(id string) http.HandlerFunc {
	return jsonHandler(`{"loginSuccess":true,"sessionId":"` + id + `"}`)
}

// csrfLogin answers a login with a CSRF token and the authToken cookie.
func csrfLogin(token, cookie string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "authToken", Value: cookie, HttpOnly: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loginSuccess":true,"csrfToken":"` + token + `"}`))
	}
}

// newTestClient creates a client for baseURL with a cache in a temp dir and
// instant retry sleeps.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	return newTestClientWithCache(t, baseURL, filepath.Join(t.TempDir(), "elviscache.idv"))
}

func newTestClientWithCache(t *testing.T, baseURL, cachePath string) *Client {
	t.Helper()

	c, err := NewClient(Config{
		BaseURL:      baseURL,
		Username:     "alice",
		Password:     "s3cret",
		SessionCache: cachePath,
		Store:        sessioncache.NewFileStore(cachePath, nil),
	})
	require.NoError(t, err)

	c.sleepFunc = noopSleep

	return c
}

// loggedInClient returns a client already logged in against fs.
func loggedInClient(t *testing.T, fs *fakeService) *Client {
	t.Helper()

	c := newTestClient(t, fs.srv.URL)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	return c
}
