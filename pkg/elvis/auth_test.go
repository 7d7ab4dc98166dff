package elvis

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_SessionCookieMode(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login":  sessionLogin("S123"),
		"/services/search": jsonHandler(`{"totalHits":0,"hits":[]}`),
	})

	c := newTestClient(t, fs.srv.URL)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, SessionCookie{ID: "S123"}, c.Session().Mode)
	assert.True(t, c.Session().CacheWritten)

	login := fs.last(t, "/services/login")
	assert.Equal(t, http.MethodPost, login.Method)
	assert.Equal(t, "alice", login.Form.Get("username"))
	assert.Equal(t, "s3cret", login.Form.Get("password"))

	_, err = c.Search(context.Background(), "folderPath: /Demo", 0, 50)
	require.NoError(t, err)

	search := fs.last(t, "/services/search")
	assert.Equal(t, "/services/search;jsessionid=S123", search.Path)
	assert.Empty(t, search.Header.Get(csrfHeader))
}

func TestLogin_CSRFMode(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login":  csrfLogin("tok-1", "cookie-1"),
		"/services/search": jsonHandler(`{"hits":[]}`),
	})

	c := newTestClient(t, fs.srv.URL)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CSRF{Token: "tok-1", Cookie: "cookie-1"}, c.Session().Mode)

	_, err = c.SearchAssetID(context.Background(), "A1")
	require.NoError(t, err)

	search := fs.last(t, "/services/search")
	assert.Equal(t, "/services/search", search.Path)
	assert.Equal(t, "tok-1", search.Header.Get("X-CSRF-TOKEN"))
	assert.Equal(t, "authToken=cookie-1", search.Header.Get("Cookie"))
}

func TestLogin_SessionIDWinsOverCSRF(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": jsonHandler(`{"loginSuccess":true,"sessionId":"S1","csrfToken":"T1"}`),
	})

	c := newTestClient(t, fs.srv.URL)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, SessionCookie{ID: "S1"}, c.Session().Mode)
}

func TestLogin_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no success flag", `{"loginFaultMessage":"Invalid username or password"}`},
		{"success flag without credentials", `{"loginSuccess":true}`},
		{"empty credentials", `{"loginSuccess":true,"sessionId":"","csrfToken":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeService(t, map[string]http.HandlerFunc{
				"/services/login": jsonHandler(tt.body),
			})

			cache := filepath.Join(t.TempDir(), "cache.idv")
			c := newTestClientWithCache(t, fs.srv.URL, cache)

			ok, err := c.Login(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, NoAuth{}, c.Session().Mode)
			assert.False(t, c.Session().CacheWritten)

			_, statErr := os.Stat(cache)
			assert.True(t, os.IsNotExist(statErr), "rejected login must not be cached")
		})
	}
}

func TestLogin_TransportFailureIsTyped(t *testing.T) {
	fs := newFakeService(t, nil)
	url := fs.srv.URL
	fs.srv.Close()

	c := newTestClient(t, url)

	ok, err := c.Login(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestLogin_DecodeFailureIsTyped(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		},
	})

	c := newTestClient(t, fs.srv.URL)

	ok, err := c.Login(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDecode)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, http.StatusOK, decErr.StatusCode)
}

func TestLogin_CachedSessionSkipsNetwork(t *testing.T) {
	var logins atomic.Int32

	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			sessionLogin("S-net")(w, r)
		},
	})

	cache := filepath.Join(t.TempDir(), "cache.idv")

	first := newTestClientWithCache(t, fs.srv.URL, cache)
	ok, err := first.Login(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, logins.Load())

	second := newTestClientWithCache(t, fs.srv.URL, cache)

	for range 2 {
		ok, err = second.Login(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.EqualValues(t, 1, logins.Load(), "cached session must short-circuit login")
	assert.Equal(t, SessionCookie{ID: "S-net"}, second.Session().Mode)
	assert.False(t, second.Session().CacheWritten)
}

func TestLogin_CachedCSRFRestoresCookie(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.idv")
	doc := `{"loginSuccess":true,"csrfToken":"T9","cookie":{"authToken":"C9","JSESSIONID":"x"}}`
	require.NoError(t, os.WriteFile(cache, []byte(doc), 0o600))

	fs := newFakeService(t, nil)
	c := newTestClientWithCache(t, fs.srv.URL, cache)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CSRF{Token: "T9", Cookie: "C9"}, c.Session().Mode)
	assert.Empty(t, fs.requests("/services/login"))
}

func TestLogin_CacheHoldsRawResponseWithCookies(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": csrfLogin("T1", "C1"),
	})

	cache := filepath.Join(t.TempDir(), "cache.idv")
	c := newTestClientWithCache(t, fs.srv.URL, cache)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(cache)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["loginSuccess"])
	assert.Equal(t, "T1", doc["csrfToken"])
	assert.Equal(t, map[string]any{"authToken": "C1"}, doc["cookie"])
}

func TestLogin_CorruptCacheFallsBackToNetwork(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.idv")
	require.NoError(t, os.WriteFile(cache, []byte("{not json"), 0o600))

	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": sessionLogin("S-new"),
	})

	c := newTestClientWithCache(t, fs.srv.URL, cache)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.Session().CacheWritten)
	assert.Len(t, fs.requests("/services/login"), 1)
}

func TestLogout_WithoutOwnSession(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.idv")
	require.NoError(t, os.WriteFile(cache, []byte(`{"loginSuccess":true,"sessionId":"S0"}`), 0o600))

	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/logout": jsonHandler(`{"logoutSuccess":true}`),
	})

	c := newTestClientWithCache(t, fs.srv.URL, cache)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := c.Logout(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.NotLoggedIn())
	assert.Equal(t, false, resp["status"])
	assert.Empty(t, fs.requests("/services/logout"), "no network call expected")

	_, statErr := os.Stat(cache)
	assert.NoError(t, statErr, "foreign cache must be kept")
}

func TestLogout_NeverLoggedIn(t *testing.T) {
	fs := newFakeService(t, nil)
	c := newTestClient(t, fs.srv.URL)

	resp, err := c.Logout(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.NotLoggedIn())
}

func TestLogout_ClearsCacheAndSession(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login":  sessionLogin("S5"),
		"/services/logout": jsonHandler(`{"logoutSuccess":true}`),
	})

	cache := filepath.Join(t.TempDir(), "cache.idv")
	c := newTestClientWithCache(t, fs.srv.URL, cache)

	ok, err := c.Login(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := c.Logout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, resp["logoutSuccess"])
	assert.False(t, resp.NotLoggedIn())

	logout := fs.last(t, "/services/logout")
	assert.Equal(t, http.MethodPost, logout.Method)
	assert.Equal(t, "/services/logout;jsessionid=S5", logout.Path)

	_, statErr := os.Stat(cache)
	assert.True(t, os.IsNotExist(statErr))

	assert.Equal(t, NoAuth{}, c.Session().Mode)
	assert.False(t, c.Session().LoggedIn())
	assert.False(t, c.Session().CacheWritten)
}

func TestEnsureLogin_ConcurrentCallersShareOneLogin(t *testing.T) {
	var logins atomic.Int32

	release := make(chan struct{})

	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			<-release
			sessionLogin("S-shared")(w, r)
		},
	})

	c := newTestClient(t, fs.srv.URL)

	var wg sync.WaitGroup

	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			errs[i] = c.EnsureLogin(context.Background())
		}(i)
	}

	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	// Goroutines arriving after the first login finished see the session and
	// skip the network, so at most one login is ever sent.
	assert.EqualValues(t, 1, logins.Load())
	assert.True(t, c.Session().LoggedIn())
}

func TestEnsureLogin_CanceledCallerDoesNotFailOthers(t *testing.T) {
	var logins atomic.Int32

	entered := make(chan struct{})
	release := make(chan struct{})

	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": func(w http.ResponseWriter, r *http.Request) {
			if logins.Add(1) == 1 {
				close(entered)
			}

			<-release
			sessionLogin("S-detached")(w, r)
		},
	})

	c := newTestClient(t, fs.srv.URL)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)

	go func() { firstErr <- c.EnsureLogin(firstCtx) }()

	<-entered

	secondErr := make(chan error, 1)

	go func() { secondErr <- c.EnsureLogin(context.Background()) }()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)

	assert.EqualValues(t, 1, logins.Load())
	assert.Equal(t, SessionCookie{ID: "S-detached"}, c.Session().Mode)
}

func TestEnsureLogin_Rejected(t *testing.T) {
	fs := newFakeService(t, map[string]http.HandlerFunc{
		"/services/login": jsonHandler(`{"loginSuccess":false}`),
	})

	c := newTestClient(t, fs.srv.URL)

	err := c.EnsureLogin(context.Background())
	assert.ErrorIs(t, err, ErrLoginRejected)
}

func TestInterpretLogin(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want AuthMode
		ok   bool
	}{
		{"missing flag", Response{"sessionId": "S"}, NoAuth{}, false},
		{"session", Response{"loginSuccess": true, "sessionId": "S"}, SessionCookie{ID: "S"}, true},
		{"csrf with cookie", Response{
			"loginSuccess": true, "csrfToken": "T",
			CookieKey: map[string]any{"authToken": "C"},
		}, CSRF{Token: "T", Cookie: "C"}, true},
		{"csrf without cookie", Response{"loginSuccess": true, "csrfToken": "T"}, CSRF{Token: "T"}, true},
		{"flag only", Response{"loginSuccess": true}, NoAuth{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, ok := interpretLogin(tt.resp)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestApplyAuth_CSRFRequiresBothParts(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/services/search", nil)
	require.NoError(t, err)

	applyAuth(CSRF{Token: "T"}, req)
	assert.Empty(t, req.Header.Get(csrfHeader))
	assert.Empty(t, req.Header.Get("Cookie"))

	applyAuth(CSRF{Token: "T", Cookie: "C"}, req)
	assert.Equal(t, "T", req.Header.Get(csrfHeader))
	assert.Equal(t, "authToken=C", req.Header.Get("Cookie"))
}

func TestApplyAuth_SessionIDBeforeQuery(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/services/create?assetPath=%2FDemo%2Fa.collection", nil)
	require.NoError(t, err)

	applyAuth(SessionCookie{ID: "S1"}, req)
	assert.Equal(t,
		"http://example.com/services/create;jsessionid=S1?assetPath=%2FDemo%2Fa.collection",
		req.URL.String())
}
