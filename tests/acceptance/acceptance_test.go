package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	httpPkg "github.com/warehouse-wcs/fleet-controller/internal/app"
	httpServerPkg "github.com/warehouse-wcs/fleet-controller/internal/http"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/logging"
)

// AcceptanceTestSuite drives the fleet controller end-to-end through its
// HTTP surface (§6) in a black-box style, against a live multi-vehicle
// fleet and the real pathfinder, dispatcher, and lifter coordinators.
type AcceptanceTestSuite struct {
	suite.Suite
	sys     *httpPkg.System
	server  *httpServerPkg.Server
	cfg     *config.Config
	testSrv *httptest.Server
	ctx     context.Context
	cancel  context.CancelFunc
}

func (suite *AcceptanceTestSuite) SetupSuite() {
	log.SetOutput(io.Discard)
	logging.InitLogger("ERROR")
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
}

func (suite *AcceptanceTestSuite) TearDownSuite() {
	if suite.cancel != nil {
		suite.cancel()
	}
}

func (suite *AcceptanceTestSuite) SetupTest() {
	for _, kv := range [][2]string{
		{"ENV", "testing"},
		{"LOG_LEVEL", "ERROR"},
		{"DEFAULT_SHUTTLE_COUNT", "2"},
		{"DEFAULT_AMR_COUNT", "1"},
	} {
		require.NoError(suite.T(), os.Setenv(kv[0], kv[1]))
	}

	var err error
	suite.cfg, err = config.InitConfig()
	require.NoError(suite.T(), err)

	suite.sys, err = httpPkg.New(suite.cfg)
	require.NoError(suite.T(), err)

	runCtx, cancel := context.WithCancel(suite.ctx)
	suite.cancel = cancel
	suite.sys.Run(runCtx)

	suite.server = httpServerPkg.NewServer(suite.cfg, suite.cfg.Port, suite.sys)
	suite.testSrv = httptest.NewServer(suite.server.GetHandler())

	time.Sleep(10 * time.Millisecond)
}

func (suite *AcceptanceTestSuite) TearDownTest() {
	if suite.testSrv != nil {
		suite.testSrv.Close()
		suite.testSrv = nil
	}
	suite.sys.Shutdown()
	for _, k := range []string{"ENV", "LOG_LEVEL", "DEFAULT_SHUTTLE_COUNT", "DEFAULT_AMR_COUNT"} {
		_ = os.Unsetenv(k)
	}
}

// Helpers

func (suite *AcceptanceTestSuite) postJSON(path string, body any) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(suite.T(), err)
	resp, err := http.Post(suite.testSrv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(suite.T(), err)
	return resp
}

func (suite *AcceptanceTestSuite) get(path string) *http.Response {
	resp, err := http.Get(suite.testSrv.URL + path)
	require.NoError(suite.T(), err)
	return resp
}

func (suite *AcceptanceTestSuite) decode(resp *http.Response) map[string]interface{} {
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// Scenarios

// TestAMRPathRequest exercises the AMR fire-and-forget task surface
// (§4.13, §6 POST /amr/path): a valid request returns a taskId and a
// non-empty move_task_list built by the metric A* pathfinder (C1).
func (suite *AcceptanceTestSuite) TestAMRPathRequest() {
	resp := suite.postJSON("/amr/path", map[string]string{
		"amr_id": "AMR-1",
		"start":  "F1-R00-C02",
		"end":    "F1-R03-C05",
	})
	defer resp.Body.Close()
	suite.Equal(http.StatusOK, resp.StatusCode)

	data := suite.decode(resp)["data"].(map[string]interface{})
	suite.NotEmpty(data["task_id"])
	suite.NotEmpty(data["move_task_list"])
}

// TestAMRPathRequest_MissingFields exercises the validation-error path
// (§7 "Validation — bad inputs at ingress; reject with BadRequest").
func (suite *AcceptanceTestSuite) TestAMRPathRequest_MissingFields() {
	resp := suite.postJSON("/amr/path", map[string]string{"amr_id": "AMR-1"})
	defer resp.Body.Close()
	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}

// TestLifterRequestTaskRoundTrip exercises §6's lifter endpoints:
// request-task enqueues onto the tower's FIFO queue (§4.7), and
// complete-task/:id marks it done and surfaces the next queued entry.
func (suite *AcceptanceTestSuite) TestLifterRequestTaskRoundTrip() {
	resp := suite.postJSON("/lifter/request-task", map[string]string{
		"vehicle":      "SHUTTLE-1",
		"target_floor": "F2",
	})
	suite.Equal(http.StatusOK, resp.StatusCode)
	created := suite.decode(resp)["data"].(map[string]interface{})
	taskID := created["task_id"].(string)
	suite.NotEmpty(taskID)

	completeResp, err := http.Post(suite.testSrv.URL+"/lifter/complete-task/"+taskID, "application/json", nil)
	require.NoError(suite.T(), err)
	defer completeResp.Body.Close()
	suite.Equal(http.StatusOK, completeResp.StatusCode)
}

// TestLifterRequestTaskUnknownFloor verifies the 404 contract (§6) for a
// floor no registered tower serves.
func (suite *AcceptanceTestSuite) TestLifterRequestTaskUnknownFloor() {
	resp := suite.postJSON("/lifter/request-task", map[string]string{
		"vehicle":      "SHUTTLE-1",
		"target_floor": "F99",
	})
	defer resp.Body.Close()
	suite.Equal(http.StatusNotFound, resp.StatusCode)
}

// TestHealthEndpoint verifies the §6 GET /health contract returns a status
// payload without requiring a populated fleet.
func (suite *AcceptanceTestSuite) TestHealthEndpoint() {
	resp := suite.get("/health")
	defer resp.Body.Close()
	suite.Equal(http.StatusOK, resp.StatusCode)
}

// TestMetricsEndpoint verifies both the operator-facing fleet snapshot
// (/v1/metrics) and the Prometheus series endpoint (/metrics) respond.
func (suite *AcceptanceTestSuite) TestMetricsEndpoint() {
	snapshotResp := suite.get("/v1/metrics")
	defer snapshotResp.Body.Close()
	suite.Equal(http.StatusOK, snapshotResp.StatusCode)
	data := suite.decode(snapshotResp)["data"].(map[string]interface{})
	suite.Contains(data, "vehicles")

	promResp := suite.get("/metrics")
	defer promResp.Body.Close()
	suite.Equal(http.StatusOK, promResp.StatusCode)
}

// TestHTTPMethodValidation verifies that the POST-only /amr/path rejects GET
// and the GET-only /health rejects PUT, each with 405.
func (suite *AcceptanceTestSuite) TestHTTPMethodValidation() {
	resp := suite.get("/amr/path")
	defer resp.Body.Close()
	suite.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

	putResp, err := http.NewRequest(http.MethodPut, suite.testSrv.URL+"/health", nil)
	require.NoError(suite.T(), err)
	r, err := http.DefaultClient.Do(putResp)
	require.NoError(suite.T(), err)
	defer r.Body.Close()
	suite.Equal(http.StatusMethodNotAllowed, r.StatusCode)
}

func TestAcceptanceTestSuite(t *testing.T) {
	suite.Run(t, new(AcceptanceTestSuite))
}

// TestQuickAcceptance is a fast, non-suite smoke test covering the API-info
// route, useful as a sub-second sanity check ahead of the full suite.
func TestQuickAcceptance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping quick acceptance check in short mode")
	}

	require.NoError(t, os.Setenv("ENV", "testing"))
	require.NoError(t, os.Setenv("LOG_LEVEL", "ERROR"))
	defer func() {
		_ = os.Unsetenv("ENV")
		_ = os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := config.InitConfig()
	require.NoError(t, err)

	sys, err := httpPkg.New(cfg)
	require.NoError(t, err)
	defer sys.Shutdown()

	server := httpServerPkg.NewServer(cfg, cfg.Port, sys)
	testSrv := httptest.NewServer(server.GetHandler())
	defer testSrv.Close()

	resp, err := http.Get(testSrv.URL + "/v1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
