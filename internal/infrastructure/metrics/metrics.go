// Package metrics 收集 Prometheus 指標
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ai_chef"

// Collector 指標收集器；nil 的 Collector 可安全呼叫所有方法
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	searchesTotal      *prometheus.CounterVec
	searchDuration     prometheus.Histogram
	cacheLookups       *prometheus.CounterVec
	repositoryFailures prometheus.Counter

	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	quotaDenials       *prometheus.CounterVec
}

// New 建立收集器，使用獨立的 registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		searchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Recipe searches by result source",
			},
			[]string{"source"},
		),
		searchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Recipe search duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Recipe cache lookups by result",
			},
			[]string{"result"},
		),
		repositoryFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_failures_total",
				Help:      "Content repository fetch failures",
			},
		),

		generationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "AI generation attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "AI provider call duration in seconds",
				Buckets:   []float64{.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"provider"},
		),
		quotaDenials: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_denials_total",
				Help:      "Generation attempts refused by the local quota",
			},
			[]string{"provider"},
		),
	}
}

// Registry 底層 registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler /metrics 處理器
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware 記錄每個請求的次數與耗時
func (c *Collector) HTTPMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveSearch 記錄一次搜尋
func (c *Collector) ObserveSearch(source string, d time.Duration) {
	if c == nil {
		return
	}
	c.searchesTotal.WithLabelValues(source).Inc()
	c.searchDuration.Observe(d.Seconds())
}

// CacheLookup 記錄快取查詢結果（exact_hit、fuzzy_hit、miss）
func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RepositoryFailure 內容倉庫讀取失敗
func (c *Collector) RepositoryFailure() {
	if c == nil {
		return
	}
	c.repositoryFailures.Inc()
}

// ObserveGeneration 記錄一次供應商呼叫
func (c *Collector) ObserveGeneration(provider, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationsTotal.WithLabelValues(provider, outcome).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// QuotaDenied 本地額度拒絕
func (c *Collector) QuotaDenied(provider string) {
	if c == nil {
		return
	}
	c.quotaDenials.WithLabelValues(provider).Inc()
}
