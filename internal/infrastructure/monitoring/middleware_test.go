package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(m *Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(m, "/metrics"))
	r.GET("/sources/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/sources", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, method, path, body string) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := newRouter(m)

	serve(r, http.MethodGet, "/sources/src_a", "")
	serve(r, http.MethodGet, "/sources/src_b", "")
	serve(r, http.MethodPost, "/sources", `{"name":"x"}`)
	serve(r, http.MethodGet, "/nowhere", "")
	serve(r, http.MethodGet, "/metrics", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sources/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/sources", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.RequestsTotal))

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.TotalErrors)
}

func TestMiddlewareNilMetrics(t *testing.T) {
	r := newRouter(nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources/src_a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	timer := NewTimer(m, "source", "create_browser")
	elapsed := timer.Stop("success")
	require.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationCalls.WithLabelValues("source", "create_browser", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))

	assert.NotPanics(t, func() { NewTimer(nil, "source", "noop").Stop("success") })
}
