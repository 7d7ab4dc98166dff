package config

import (
	"fmt"
	"io"
	"net/url"
)

// redacted replaces secrets in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as annotated TOML to w.
// This powers the "config show" command. The password is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	password := ""
	if r.Password != "" {
		password = redacted
	}

	ew.printf("[service]\n")
	ew.printf("  url             = %q\n", r.URL)
	ew.printf("  username        = %q\n", r.Username)
	ew.printf("  password        = %q\n", password)
	ew.printf("  session_backend = %q\n", r.SessionBackend)

	if r.SessionBackend == BackendRedis {
		ew.printf("  redis_url       = %q\n", redactURL(r.RedisURL))
		ew.printf("  redis_key       = %q\n", r.RedisKey)
		ew.printf("  session_ttl     = %q\n", r.SessionTTL.String())
	} else {
		ew.printf("  session_cache   = %q\n", r.SessionCache)
	}

	ew.printf("\n[network]\n")
	ew.printf("  request_timeout     = %q\n", r.RequestTimeout.String())
	ew.printf("  connect_timeout     = %q\n", r.ConnectTimeout.String())
	ew.printf("  max_retries         = %d\n", r.MaxRetries)
	ew.printf("  requests_per_second = %g\n", r.RequestsPerSecond)

	if r.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", r.UserAgent)
	}

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// redactURL hides the password of a URL with user info.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
