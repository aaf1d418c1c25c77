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

func TestSetupWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "vledgerd", Env: "test", Level: "debug", Output: &buf})
	defer closer.Close()

	logger.Debug("block created", "number", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "vledgerd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "block created", line["message"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 3, line["number"])
}

func TestSetupRotatesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	logger, closer := SetupWithOptions(Options{Service: "vledgerd", File: FileConfig{Path: path}, Output: &bytes.Buffer{}})
	logger.Info("hello")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), `"message":"hello"`), "file contents: %s", raw)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskFieldAndFingerprint(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("secret", "0xdeadbeef").Value.String())
	require.Equal(t, "0x01", MaskField("vaddr", "0x01").Value.String())

	sig := "0x" + strings.Repeat("ab", 65)
	got := Fingerprint("signature", sig).Value.String()
	require.Equal(t, "0xabab…abab", got)
	require.Equal(t, RedactedValue, Fingerprint("signature", "0x1234").Value.String())
	require.Contains(t, RedactionAllowlist(), "tx_id")
}
