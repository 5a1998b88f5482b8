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

func TestCollectorCounters(t *testing.T) {
	c := New()

	c.ObserveSearch("cache_exact", 10*time.Millisecond)
	c.ObserveSearch("cache_exact", 20*time.Millisecond)
	c.ObserveSearch("none", 5*time.Millisecond)
	c.CacheLookup("miss")
	c.RepositoryFailure()
	c.ObserveGeneration("gemini", "success", time.Second)
	c.QuotaDenied("groq")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.searchesTotal.WithLabelValues("cache_exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.searchesTotal.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.repositoryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("gemini", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quotaDenials.WithLabelValues("groq")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ObserveSearch("none", time.Millisecond)
		c.CacheLookup("miss")
		c.RepositoryFailure()
		c.ObserveGeneration("gemini", "error", time.Millisecond)
		c.QuotaDenied("gemini")
	})
	assert.Nil(t, c.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New()

	r := gin.New()
	r.Use(c.HTTPMiddleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(c.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `ai_chef_http_requests_total{method="GET",path="/ping",status_code="200"} 1`))
}
