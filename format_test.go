package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syahrul84/ElvisAPI/pkg/elvis"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"KEY", "VALUE"}, [][]string{
		{"id", "A1"},
		{"assetPath", "/Demo/a.jpg"},
	})

	assert.Equal(t, "KEY        VALUE\nid         A1\nassetPath  /Demo/a.jpg\n", buf.String())
}

func TestPrintResponse_DropsCookies(t *testing.T) {
	old := flagJSON
	t.Cleanup(func() { flagJSON = old })

	resp := elvis.Response{
		"id":            "A1",
		"metadata":      map[string]any{"rating": float64(5)},
		elvis.CookieKey: map[string]any{"authToken": "secret"},
	}

	flagJSON = true

	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, resp))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "A1", got["id"])
	assert.NotContains(t, got, elvis.CookieKey)

	flagJSON = false

	buf.Reset()
	require.NoError(t, printResponse(&buf, resp))
	assert.Equal(t, "KEY       VALUE\nid        A1\nmetadata  {\"rating\":5}\n", buf.String())
	assert.NotContains(t, buf.String(), "secret")
}

func TestHitSize(t *testing.T) {
	assert.Equal(t, "2.0 KB", hitSize(elvis.Hit{Metadata: map[string]any{"fileSize": float64(2048)}}))
	assert.Equal(t, "1.0 MB", hitSize(elvis.Hit{Metadata: map[string]any{
		"fileSize": map[string]any{"value": float64(1 << 20), "formatted": "1 MB"},
	}}))
	assert.Empty(t, hitSize(elvis.Hit{}))
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, checkResponse(elvis.Response{"id": "A1"}))

	err := checkResponse(elvis.Response{"errorcode": float64(403), "message": "No permission"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errServiceFailure)
	assert.Contains(t, err.Error(), "No permission (code 403)")
}
