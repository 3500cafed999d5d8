package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)
	l.Info("transport connected", "kind", "tcp")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "transport connected", rec["msg"])
	assert.Equal(t, "tcp", rec["kind"])

	buf.Reset()
	l, err = New(&buf, "", "logfmt")
	require.NoError(t, err)
	l.Info("fix", "lat", 1.5)
	assert.Contains(t, buf.String(), "msg=fix")
	assert.Contains(t, buf.String(), "lat=1.5")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "WARN", "")
	require.NoError(t, err)
	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("shown")
	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, "shown")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
