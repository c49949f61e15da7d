package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Production(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, true)
	logger.Debug("hidden")
	logger.Info("device matched", "device_id", "d1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "device matched", rec["msg"])
	assert.Equal(t, "d1", rec["device_id"])
}

func TestNew_Development(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, false)
	logger.Debug("filter cached", "filter", "carrier = 'Acme'", "empty", "")

	out := buf.String()
	assert.Contains(t, out, "filter cached")
	assert.Contains(t, out, "carrier = 'Acme'")
	assert.NotContains(t, out, "empty=", "empty strings are dropped")
	assert.False(t, strings.Contains(out, "\x1b["), "no color codes")
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2012, 6, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	assert.Equal(t, "2012-06-01T11:00:00.123Z", formatRFC3339Millis(ts))
}
