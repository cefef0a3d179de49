package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
)

func buildServerTestConfig(t *testing.T) *config.Config {
	t.Helper()
	clearHandlerTestEnv(t)
	cfg, err := config.InitConfig()
	require.NoError(t, err)
	return cfg
}

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := buildServerTestConfig(t)
	sys := newTestSystem(t)
	server := NewServer(cfg, cfg.Port, sys)
	httpSrv := httptest.NewServer(server.GetHandler())
	t.Cleanup(httpSrv.Close)
	return server, httpSrv
}

func TestServer_APIInfoRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/v1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_HealthRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_LivenessRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/v1/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ReadinessRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/v1/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, resp.StatusCode)
}

func TestServer_DetailedHealthRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/v1/health/detailed")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, resp.StatusCode)
}

func TestServer_MetricsRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_AMRPathRoute(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Post(httpSrv.URL+"/amr/path", "application/json",
		nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Nil body decodes as invalid JSON, which is itself evidence the route
	// reaches AMRPathHandler rather than 404ing.
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UnknownLifterFloor(t *testing.T) {
	_, httpSrv := setupTestServer(t)

	resp, err := http.Post(httpSrv.URL+"/lifter/request-task", "application/json",
		strings.NewReader(`{"vehicle":"SHUTTLE-1","target_floor":"F99"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ShutdownWithoutListenAndServe(t *testing.T) {
	server, httpSrv := setupTestServer(t)
	httpSrv.Close()

	// The underlying http.Server was never started with ListenAndServe
	// here (httptest.Server owns its own listener), so Shutdown on an
	// unstarted server must not error or hang.
	err := server.Shutdown()
	assert.NoError(t, err)
}
