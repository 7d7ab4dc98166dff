package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syahrul84/ElvisAPI/pkg/elvis"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the session",
		Long: `Log in to the Elvis server with the configured credentials. The login
response is cached so later commands, and other processes sharing the cache,
reuse the session without logging in again.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session created by this process",
		Long: `End the session. The server session is only ended by the process that
created it; a cached session from an earlier run is left alone unless --clear
is given, which removes it from the session cache.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}

	cmd.Flags().Bool("clear", false, "remove a cached session created by another process")

	return cmd
}

// loginJSON is the JSON output schema of the login command.
type loginJSON struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Mode     string `json:"mode"`
	Cached   bool   `json:"cached"`
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := newClient()
	if err != nil {
		return err
	}
	defer s.close()

	ok, err := s.client.Login(ctx)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	if !ok {
		return fmt.Errorf("%w: check username and password for %s", elvis.ErrLoginRejected, resolvedCfg.URL)
	}

	state := s.client.Session()
	out := loginJSON{
		URL:      s.client.BaseURL(),
		Username: resolvedCfg.Username,
		Mode:     authModeLabel(state.Mode),
		Cached:   !state.CacheWritten,
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	source := "new session"
	if out.Cached {
		source = "cached session"
	}

	statusf("Logged in to %s as %s (%s, %s)\n", out.URL, out.Username, out.Mode, source)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	clearCache, _ := cmd.Flags().GetBool("clear")

	s, err := newClient()
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := s.client.Logout(ctx)
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	if !resp.NotLoggedIn() {
		statusf("Logged out of %s\n", s.client.BaseURL())
		return nil
	}

	if !clearCache {
		return errors.New("no session created by this process; use --clear to drop the cached session")
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session cache: %w", err)
	}

	statusf("Cleared cached session for %s\n", s.client.BaseURL())

	return nil
}

// authModeLabel names an auth mode for display.
func authModeLabel(mode elvis.AuthMode) string {
	switch mode.(type) {
	case elvis.SessionCookie:
		return "session-id"
	case elvis.CSRF:
		return "csrf"
	default:
		return "none"
	}
}
