package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters_Increment(t *testing.T) {
	c := LinesReceived.WithLabelValues("metrics-test")
	before := testutil.ToFloat64(c)
	c.Inc()
	c.Add(2)
	assert.Equal(t, before+3, testutil.ToFloat64(c))

	before = testutil.ToFloat64(PipelineRestarts)
	PipelineRestarts.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PipelineRestarts))
}

func TestObserveProcessLatency(t *testing.T) {
	ObserveProcessLatency(time.Now().Add(-time.Millisecond))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(ProcessLatency), 1)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	Sentences.WithLabelValues("GGA").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `nmea_sentences_total{type="GGA"}`))
}
