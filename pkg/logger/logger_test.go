package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWriter_TypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("run_id", "r1"))

	l.Warn("risk analysis unavailable",
		String("symbol", "CL"),
		Int("horizons", 3),
		Float64("price", 75.2),
		Duration("elapsed", 1500*time.Millisecond),
		Strings("unresolved", []string{"24-month"}),
		Ints("months", []int{3, 6}),
		Bool("fallback", true),
		Error(errors.New("timeout")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "risk analysis unavailable", entry["message"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "CL", entry["symbol"])
	assert.EqualValues(t, 3, entry["horizons"])
	assert.InDelta(t, 75.2, entry["price"], 1e-9)
	assert.Equal(t, true, entry["fallback"])
	assert.Equal(t, "timeout", entry["error"])
	assert.Equal(t, "24-month", entry["unresolved"])
	assert.Equal(t, []interface{}{3.0, 6.0}, entry["months"])
	assert.EqualValues(t, 1500, entry["elapsed"])
}

func TestNewWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Debug("stage")
	l.Info("done")
	assert.Zero(t, buf.Len())

	l.Error("exhausted")
	assert.Contains(t, buf.String(), "exhausted")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("ignored", Error(errors.New("x"))) })
}
