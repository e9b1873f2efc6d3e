// Package metrics 提供 prometheus 指標
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服務所有指標
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分析引擎
	analysisTotal *prometheus.CounterVec

	// 匯入
	importTotal *prometheus.CounterVec

	// 資料庫
	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	dbRetriesTotal      *prometheus.CounterVec

	// 快取
	cacheOperationsTotal *prometheus.CounterVec

	// AI
	aiCallsTotal   *prometheus.CounterVec
	aiCallDuration *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// New 創建並註冊指標，registry 為 nil 時建立新的 registry
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gutkb_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_analysis_operations_total",
			Help: "Total number of meal analysis operations",
		},
		[]string{"operation"},
	)

	m.importTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_import_documents_total",
			Help: "Total number of processed import documents",
		},
		[]string{"outcome"},
	)

	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_db_operations_total",
			Help: "Total number of repository operations",
		},
		[]string{"operation", "status"},
	)
	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gutkb_db_operation_duration_seconds",
			Help:    "Time taken for repository operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)
	m.dbRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_db_retries_total",
			Help: "Total number of retried repository operations",
		},
		[]string{"operation"},
	)

	m.cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_cache_operations_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"}, // result: hit, miss
	)

	m.aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gutkb_ai_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"kind", "status"},
	)
	m.aiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gutkb_ai_call_duration_seconds",
			Help:    "Time taken for language model calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"kind"},
	)

	m.collectors = []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.analysisTotal,
		m.importTotal,
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbRetriesTotal,
		m.cacheOperationsTotal,
		m.aiCallsTotal,
		m.aiCallDuration,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// Handler 回傳 /metrics 處理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 記錄 HTTP 請求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAnalysis 記錄分析操作
func (m *Metrics) RecordAnalysis(operation string) {
	m.analysisTotal.WithLabelValues(operation).Inc()
}

// RecordImport 記錄單一文件匯入結果
func (m *Metrics) RecordImport(outcome string) {
	m.importTotal.WithLabelValues(outcome).Inc()
}

// RecordDBOperation 記錄資料庫操作
func (m *Metrics) RecordDBOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDBRetry 記錄資料庫重試
func (m *Metrics) RecordDBRetry(operation string) {
	m.dbRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordCacheLookup 記錄快取查詢結果
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOperationsTotal.WithLabelValues(cache, result).Inc()
}

// RecordAICall 記錄語言模型呼叫
func (m *Metrics) RecordAICall(kind string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.aiCallsTotal.WithLabelValues(kind, status).Inc()
	m.aiCallDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
