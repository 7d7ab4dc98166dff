package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/syahrul84/ElvisAPI/internal/config"
	"github.com/syahrul84/ElvisAPI/pkg/elvis"
	"github.com/syahrul84/ElvisAPI/pkg/sessioncache"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath   string
	flagURL          string
	flagUsername     string
	flagSessionCache string
	flagJSON         bool
	flagVerbose      bool
	flagQuiet        bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// skipConfigCommands lists commands that run without a resolved config,
// either because they create it or because they never contact the server.
var skipConfigCommands = map[string]bool{
	"elvis-go config init":    true,
	"elvis-go webhook-verify": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "elvis-go",
		Short:   "Elvis DAM command-line client",
		Long:    "Search, upload, download and organize assets on an Elvis DAM server.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagURL, "url", "", "Elvis server base URL")
	cmd.PersistentFlags().StringVar(&flagUsername, "username", "", "Elvis user name")
	cmd.PersistentFlags().StringVar(&flagSessionCache, "session-cache", "", "session cache file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newCollectionCmd())
	cmd.AddCommand(newRelateCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newWebhookVerifyCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	// Only pass flags the user explicitly set.
	if cmd.Flags().Changed("url") {
		cli.URL = &flagURL
	}

	if cmd.Flags().Changed("username") {
		cli.Username = &flagUsername
	}

	if cmd.Flags().Changed("session-cache") {
		cli.SessionCache = &flagSessionCache
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it.
func buildLogger() *slog.Logger {
	return newLogger(os.Stderr)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs resolves log_format. "auto" picks text for a terminal and JSON
// when stderr is redirected to a file or a log collector.
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns the transport used for all service calls. Only the
// connection phase is bounded here; request deadlines come from the SDK so
// long downloads are not cut off.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
			ForceAttemptHTTP2:   true,
		},
	}
}

// newSessionStore returns the configured session cache. The returned close
// function releases backend connections.
func newSessionStore(cfg *config.Resolved, logger *slog.Logger) (elvis.SessionStore, func(), error) {
	if cfg.SessionBackend != config.BackendRedis {
		return sessioncache.NewFileStore(cfg.SessionCache, logger), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis_url: %w", err)
	}

	rdb := redis.NewClient(opts)
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Debug("closing redis client", slog.String("error", err.Error()))
		}
	}

	return sessioncache.NewRedisStore(rdb, cfg.RedisKey, cfg.SessionTTL, logger), closeFn, nil
}

// cliSession bundles what a command needs to talk to the server.
type cliSession struct {
	client *elvis.Client
	store  elvis.SessionStore
	logger *slog.Logger
	close  func()
}

// newClient builds an SDK client from resolvedCfg without logging in.
func newClient() (*cliSession, error) {
	logger := buildLogger()

	store, closeStore, err := newSessionStore(resolvedCfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := elvis.NewClient(elvis.Config{
		BaseURL:           resolvedCfg.URL,
		Username:          resolvedCfg.Username,
		Password:          resolvedCfg.Password,
		SessionCache:      resolvedCfg.SessionCache,
		Store:             store,
		HTTPClient:        newHTTPClient(resolvedCfg),
		Logger:            logger,
		RequestTimeout:    resolvedCfg.RequestTimeout,
		MaxRetries:        resolvedCfg.MaxRetries,
		RequestsPerSecond: resolvedCfg.RequestsPerSecond,
		UserAgent:         resolvedCfg.UserAgent,
	})
	if err != nil {
		closeStore()
		return nil, err
	}

	return &cliSession{client: client, store: store, logger: logger, close: closeStore}, nil
}

// loggedInClient builds a client and ensures a session, reusing the cached
// login when there is one.
func loggedInClient(ctx context.Context) (*cliSession, error) {
	s, err := newClient()
	if err != nil {
		return nil, err
	}

	if err := s.client.EnsureLogin(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("logging in to %s: %w", resolvedCfg.URL, err)
	}

	return s, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
