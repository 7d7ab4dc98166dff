package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/syahrul84/ElvisAPI/pkg/elvis"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printResponse renders a service response. Cookies are dropped because they
// carry session credentials.
func printResponse(w io.Writer, resp elvis.Response) error {
	out := make(map[string]any, len(resp))
	for k, v := range resp {
		if k != elvis.CookieKey {
			out[k] = v
		}
	}

	if flagJSON {
		return printJSON(w, out)
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatValue(out[k])})
	}

	printTable(w, []string{"KEY", "VALUE"}, rows)

	return nil
}

// formatValue renders scalars as-is and anything else as compact JSON.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool, float64:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(data)
	}
}

// printHits renders search hits as a table.
func printHits(w io.Writer, result *elvis.SearchResult) {
	rows := make([][]string, 0, len(result.Hits))

	for _, h := range result.Hits {
		rows = append(rows, []string{h.ID, h.Filename(), hitSize(h), h.AssetPath()})
	}

	printTable(w, []string{"ID", "NAME", "SIZE", "PATH"}, rows)
}

// hitSize formats the fileSize metadata field, which the service sends
// either as a number or as {"value": n, "formatted": "..."}.
func hitSize(h elvis.Hit) string {
	switch v := h.Metadata["fileSize"].(type) {
	case float64:
		return formatSize(int64(v))
	case map[string]any:
		if n, ok := v["value"].(float64); ok {
			return formatSize(int64(n))
		}
	}

	return ""
}
