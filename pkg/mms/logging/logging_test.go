package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriterProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "production")
	logger.Info("company created", slog.Uint64("company_id", 7))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "company created", entry["msg"])
	assert.EqualValues(t, 7, entry["company_id"])
}

func TestNewWithWriterDevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "development")
	logger.Debug("token issued", slog.String("kind", "forgot_password"))

	assert.True(t, strings.Contains(buf.String(), "kind=forgot_password"))
}

func TestTokenPrefix(t *testing.T) {
	assert.Equal(t, "abc", TokenPrefix("abc"))
	assert.Equal(t, "12345678", TokenPrefix("1234567890abcdef"))
}
