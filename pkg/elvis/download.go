package elvis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

const (
	// downloadDirPerms is used when creating the destination directory.
	downloadDirPerms = 0o755
	// downloadPerms is the mode of a finished download. Temp files start
	// owner-only.
	downloadPerms = 0o644
)

// DownloadTo streams the content at assetURL to w with the session attached.
// assetURL is typically a hit's originalUrl; relative URLs are resolved
// against the base URL. The body is opaque bytes, never decoded.
func (c *Client) DownloadTo(ctx context.Context, assetURL string, w io.Writer) (int64, error) {
	target, err := c.endpoint(assetURL)
	if err != nil {
		return 0, err
	}

	resp, err := c.send(ctx, outbound{method: http.MethodGet, target: target})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippet))
		return 0, newServiceError(resp, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("elvis: streaming download content: %w", err)
	}

	return n, nil
}

// DownloadFile saves the content at assetURL to destination and reports
// whether destination exists afterwards. Content lands in a temp file next
// to destination first, so a failed download never leaves a truncated file.
func (c *Client) DownloadFile(ctx context.Context, assetURL, destination string) (bool, error) {
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, downloadDirPerms); err != nil {
		return false, fmt.Errorf("elvis: creating download directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".elvis-download-*.partial")
	if err != nil {
		return false, fmt.Errorf("elvis: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := c.DownloadTo(ctx, assetURL, tmp)
	if err != nil {
		tmp.Close()
		return false, err
	}

	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("elvis: closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, downloadPerms); err != nil {
		return false, fmt.Errorf("elvis: setting download permissions: %w", err)
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		return false, fmt.Errorf("elvis: moving download into place: %w", err)
	}

	c.logger.Info("download complete",
		slog.String("destination", destination),
		slog.Int64("bytes", n),
	)

	_, statErr := os.Stat(destination)

	return !errors.Is(statErr, fs.ErrNotExist), nil
}
