package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, " marketd ", "test", Options{Level: "debug"})
	logger.Debug("listing created", "collection", "0xabc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "marketd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "listing created", line["message"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "0xabc", line["collection"])
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "marketd", "", Options{Level: "warn"})
	logger.Info("quiet")
	require.Zero(t, buf.Len())
	logger.Warn("loud")
	require.Contains(t, buf.String(), "loud")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestSetupMirrorsToRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "marketd.log")
	logger := setup(&buf, "marketd", "", Options{File: path})
	logger.Info("persisted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "persisted")
	require.Equal(t, buf.String(), string(data))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "0xabc", MaskField("Collection", "0xabc").Value.String())
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "", MaskField("authorization", "").Value.String())
	for _, key := range RedactionAllowlist() {
		require.True(t, IsAllowlisted(strings.ToUpper(key)))
	}
	require.False(t, IsAllowlisted("token"))
}

func TestMaskBearer(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue, MaskBearer("Bearer eyJhbGciOi"))
	require.Equal(t, RedactedValue, MaskBearer("opaque"))
	require.Equal(t, "", MaskBearer(""))
}
