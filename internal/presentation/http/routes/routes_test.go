package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/internal/application/container"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
)

var dbSeq atomic.Int64

func newTestRouter(t *testing.T) (*gin.Engine, *container.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewDiscardLogger()
	dsn := fmt.Sprintf("file:routes%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.NewConnectionWithLogger(database.DriverSQLite, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewSchemaCreator().CreateSchema(context.Background(), db))

	c, err := container.NewContainerWithDB(db, logger, time.Now())
	require.NoError(t, err)
	return SetupRoutes(c), c
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthzAndRequestID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestHealthBeforeFirstRunIsUnavailable(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/observability/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "critical", body["status"])
	assert.Contains(t, body["issues"], "no health run recorded yet")
}

func TestHealthHistoryAfterRun(t *testing.T) {
	r, c := newTestRouter(t)
	c.HealthEngine.Run(context.Background())

	w := do(r, http.MethodGet, "/api/v1/observability/health/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestSystemMetricsRange(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/observability/metrics?range=1y", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/observability/metrics?range=24h", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "24h", body["range"])
	assert.Contains(t, body["degraded"], "health", "no health run has happened yet")
}

func TestAlertLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/observability/alerts", `{"type":"audit","severity":"Warning","message":"manual review"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	assert.Equal(t, "warning", created["severity"])
	id := created["id"].(string)

	w = do(r, http.MethodGet, "/api/v1/observability/alerts", "")
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(r, http.MethodDelete, "/api/v1/observability/alerts/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/observability/alerts/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/observability/alerts?history=true", "")
	body := decode(t, w)
	assert.Equal(t, float64(0), body["count"])
	assert.Len(t, body["history"], 2)
}

func TestCreateAlertValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/observability/alerts", `{"type":"audit","severity":"fatal","message":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/observability/alerts", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordWriteThenRead(t *testing.T) {
	r, c := newTestRouter(t)

	w := do(r, http.MethodPut, "/api/v1/records/r1", `{"ownerId":"org-1","kind":"policy","payload":"v1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/records?ids=r1,missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	// second read is served from the cache
	do(r, http.MethodGet, "/api/v1/records?ids=r1", "")
	assert.GreaterOrEqual(t, c.Loader.Stats().CacheHits, int64(1))

	w = do(r, http.MethodPut, "/api/v1/records/r1", `{"ownerId":"org-1","kind":"policy","payload":"v2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/records?page=1&pageSize=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	recs := page["records"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "v2", recs[0].(map[string]any)["payload"])
}

func TestRecordPaginationAndValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/records?page=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/records?pageSize=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/v1/records/r1", `{"ownerId":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	r, c := newTestRouter(t)
	c.Store.Set("a", "x", 0, "entity:7")

	w := do(r, http.MethodPost, "/api/v1/cache/invalidate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/cache/invalidate", `{"tag":"entity:7","entityId":"7"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/cache/invalidate", `{"entityId":"7"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["removed"])

	w = do(r, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	store := decode(t, w)["store"].(map[string]any)
	assert.Equal(t, float64(0), store["entryCount"])
}

func TestLogLevels(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/logs/levels", `{"channel":"cache","level":"LOUD"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/logs/levels", `{"channel":"cache","level":"WARN"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/logs/levels", "")
	assert.Equal(t, "WARN", decode(t, w)["cache"])
}

func TestPrometheusScrape(t *testing.T) {
	r, c := newTestRouter(t)
	do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, 1, c.Collector.Buffered())

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `compliance_core_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "compliance_core_cache_entries")
}

func TestLogStreamValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/logs/stream?level=LOUD", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/logs/stream", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "the discard logger has no broadcaster")
}

func TestPersistedAlertEntries(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/observability/alerts", `{"type":"audit","severity":"critical","message":"manual review"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, "/api/v1/logs/entries?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	entry := body["entries"].([]any)[0].(map[string]any)
	assert.Equal(t, "error", entry["level"])
	assert.Contains(t, entry["message"], "manual:audit activated")

	w = do(r, http.MethodGet, "/api/v1/logs/entries?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// streamRecorder adds the close notification gin's Stream expects.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (s *streamRecorder) CloseNotify() <-chan bool { return s.closed }

func TestAlertStreamIsNotMeasured(t *testing.T) {
	r, c := newTestRouter(t)
	do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, int64(1), c.Collector.Recorded())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/observability/alerts/stream", nil).WithContext(ctx)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the client went away")
	}

	assert.Contains(t, w.Body.String(), "connection established")
	assert.Equal(t, int64(1), c.Collector.Recorded(), "the stream session must not become a sample")
	assert.Equal(t, 1, c.Collector.Buffered())

	active := c.AlertManager.Evaluate(context.Background())
	assert.Empty(t, active)
}
