package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// The config file may hold a password, so it is private to the owner.
const (
	configFilePermissions = 0o600
	configDirPermissions  = 0o700
)

// configTemplate is the config file written by "config init". Every setting
// is present as a commented-out default so users can discover each option.
const configTemplate = `# elvis-go configuration

[service]
# Base URL of the Elvis server.
url = %q
# username = ""
# password = ""        # or set ELVIS_GO_PASSWORD

# Where the shared login response is cached: "file" or "redis".
# session_backend = "file"
# session_cache = ""   # default: <cache dir>/elvis-go/elviscache.idv
# redis_url = "redis://localhost:6379/0"
# redis_key = "elvis:session"
# session_ttl = "0"    # 0 keeps the cached session until logout

[network]
# request_timeout = "60s"
# connect_timeout = "10s"
# max_retries = 3      # -1 disables retries
# requests_per_second = 0
# user_agent = ""

[logging]
# Verbosity: debug, info, warn, error
# log_level = "info"
# Output format: auto (text on a terminal, JSON otherwise), text, json
# log_format = "auto"
`

// ErrConfigExists is returned by WriteTemplate when the file is present.
var ErrConfigExists = errors.New("config file already exists")

// WriteTemplate creates a commented config file at path with the given
// server URL. An existing file is never overwritten.
func WriteTemplate(path, serverURL string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	slog.Info("creating config file", "path", path)

	return atomicWriteFile(path, []byte(fmt.Sprintf(configTemplate, serverURL)))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
