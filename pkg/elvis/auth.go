package elvis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

// Service endpoints of the session lifecycle.
const (
	loginPath  = "services/login"
	logoutPath = "services/logout"
)

// Login response keys.
const (
	keyLoginSuccess = "loginSuccess"
	keySessionID    = "sessionId"
	keyCSRFToken    = "csrfToken"
)

const notLoggedInMessage = "Not logged in in this session"

// Login establishes a session. A cached login response short-circuits the
// network entirely; otherwise the credentials are posted to services/login.
// A network response is cached only when it carries loginSuccess and a usable
// sessionId or csrfToken.
//
// Returns (false, nil) when the service rejects the login or grants no usable
// credential. Errors are reserved for transport, decode and cache failures.
func (c *Client) Login(ctx context.Context) (bool, error) {
	resp, fromCache, err := c.loginResponse(ctx)
	if err != nil {
		return false, err
	}

	mode, ok := interpretLogin(resp)
	if !ok {
		c.logger.Warn("login rejected",
			slog.Bool("from_cache", fromCache),
			slog.Bool("success_flag", resp.Has(keyLoginSuccess)),
			slog.String("fault", resp.String("loginFaultMessage")),
		)

		return false, nil
	}

	var wrote bool

	if !fromCache {
		wrote = c.persistLogin(ctx, resp)
	}

	c.mu.Lock()
	c.session.Mode = mode
	if wrote {
		c.session.CacheWritten = true
	}
	c.mu.Unlock()

	c.logger.Info("logged in",
		slog.String("mode", modeName(mode)),
		slog.Bool("from_cache", fromCache),
		slog.Bool("cache_written", wrote),
	)

	return true, nil
}

// EnsureLogin logs in unless a session is already active. Concurrent callers
// share one login round trip. The shared login is detached from any single
// caller's cancellation; each caller stops waiting when its own ctx is done.
// Returns ErrLoginRejected if the service refuses the credentials.
func (c *Client) EnsureLogin(ctx context.Context) error {
	if c.Session().LoggedIn() {
		return nil
	}

	ch := c.loginGroup.DoChan("login", func() (any, error) {
		if c.Session().LoggedIn() {
			return true, nil
		}

		// Each request of the login still gets requestTimeout from send.
		return c.Login(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}

		if ok, _ := res.Val.(bool); !ok {
			return ErrLoginRejected
		}

		return nil
	}
}

// Logout ends the session this client created. A client that never wrote
// the session cache (for example one that reused another instance's cache)
// gets a not-logged-in Response and no network call; see
// Response.NotLoggedIn. Otherwise the cache is cleared, services/logout is
// called, and the in-memory session is reset.
func (c *Client) Logout(ctx context.Context) (Response, error) {
	if !c.Session().CacheWritten {
		c.logger.Debug("logout skipped, session cache not written by this client")

		return Response{"status": false, "message": notLoggedInMessage}, nil
	}

	if err := c.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("elvis: clearing session cache: %w", err)
	}

	resp, err := c.fetch(ctx, logoutPath, url.Values{}, true)

	c.mu.Lock()
	c.session = SessionState{Mode: NoAuth{}}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	c.logger.Info("logged out")

	return resp, nil
}

// loginResponse returns the cached login response if there is one, else the
// response of a network login.
func (c *Client) loginResponse(ctx context.Context) (Response, bool, error) {
	doc, err := c.store.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("elvis: loading session cache: %w", err)
	}

	if doc != nil {
		var cached Response
		if err := json.Unmarshal(doc, &cached); err == nil && cached != nil {
			c.logger.Debug("using cached login response")

			return cached, true, nil
		}

		// An unreadable cache would block every later save; replace it.
		c.logger.Warn("session cache is corrupt, clearing")

		if err := c.store.Clear(ctx); err != nil {
			return nil, false, fmt.Errorf("elvis: clearing corrupt session cache: %w", err)
		}
	}

	c.logger.Info("logging in", slog.String("user", c.username))

	resp, err := c.fetch(ctx, loginPath, url.Values{
		"username": {c.username},
		"password": {c.password},
	}, true)
	if err != nil {
		return nil, false, err
	}

	return resp, false, nil
}

// persistLogin saves a successful login response and reports whether this
// client wrote the cache. Cache failures leave the live session usable and
// are only logged.
func (c *Client) persistLogin(ctx context.Context, resp Response) bool {
	doc, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("encoding login response for cache failed", slog.String("error", err.Error()))
		return false
	}

	wrote, err := c.store.Save(ctx, doc)
	if err != nil {
		c.logger.Warn("saving session cache failed", slog.String("error", err.Error()))
		return false
	}

	return wrote
}

// interpretLogin picks the auth mode from a login response. The session id
// wins over the CSRF token; a success flag without either is a failure.
func interpretLogin(resp Response) (AuthMode, bool) {
	if !resp.Has(keyLoginSuccess) {
		return NoAuth{}, false
	}

	if id := resp.String(keySessionID); id != "" {
		return SessionCookie{ID: id}, true
	}

	if token := resp.String(keyCSRFToken); token != "" {
		return CSRF{Token: token, Cookie: resp.Cookies()[authCookieName]}, true
	}

	return NoAuth{}, false
}

func modeName(mode AuthMode) string {
	switch m := mode.(type) {
	case SessionCookie:
		return "session-cookie"
	case CSRF:
		if m.Cookie == "" {
			return "csrf-without-cookie"
		}

		return "csrf"
	default:
		return "none"
	}
}
