package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabric-actor/kernel/pkg/version"
)

func TestVersionEndpointReportsCurrentBuild(t *testing.T) {
	version.Version = "1.2.3"
	version.GitCommit = "abc123"
	t.Cleanup(func() {
		version.Version = "dev"
		version.GitCommit = "unknown"
	})

	srv := New(Config{Registerer: prometheus.NewRegistry()})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got version.Info
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, "abc123", got.GitSHA1)
}

func TestMetricsEndpointServesPrometheusRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_marker_total"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := New(Config{Registerer: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "test_marker_total")
}
