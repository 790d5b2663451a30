package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(pipelineRuns.WithLabelValues("publishing", "failed"))
	RecordRun("publishing", false)
	assert.Equal(t, before+1, testutil.ToFloat64(pipelineRuns.WithLabelValues("publishing", "failed")))
}

func TestMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/tokens/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	r.GET("/metrics", gin.WrapH(Handler()))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/tokens/:id", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tokens/7", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/tokens/:id", "418")))

	ObserveStage("composing", 20*time.Millisecond)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "traitforge_http_requests_total"))
	assert.True(t, strings.Contains(body, "traitforge_compose_stage_duration_seconds"))
}
