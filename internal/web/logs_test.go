package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("first li"))
	_, _ = b.Write([]byte("ne\r\nsecond\n\nthi"))

	lines, dropped := b.Snapshot(0)
	assert.Equal(t, []string{"first line", "second"}, lines)
	assert.Zero(t, dropped)

	_, _ = b.Write([]byte("rd\n"))
	lines, _ = b.Snapshot(1)
	assert.Equal(t, []string{"third"}, lines)
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		_, _ = fmt.Fprintf(b, "line %d\n", i)
	}
	lines, dropped := b.Snapshot(10)
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, lines)
	assert.Equal(t, uint64(2), dropped)
}

func TestLogBuffer_Handler(t *testing.T) {
	b := NewLogBuffer(5)
	_, _ = io.WriteString(b, "a\nb\nc\n")
	ts := httptest.NewServer(b.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "?tail=2")
	require.NoError(t, err)
	var got LogsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, []string{"b", "c"}, got.Lines)

	resp, err = http.Get(ts.URL + "?format=text")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "a\nb\nc\n", string(body))

	resp, err = http.Get(ts.URL + "?tail=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
