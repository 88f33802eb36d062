package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	retrievals      *prometheus.CounterVec
	searchLatency   *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	generationTime  *prometheus.HistogramVec
	writebacks      *prometheus.CounterVec
	templateUsage   prometheus.Counter
	embedCache      *prometheus.CounterVec
	batchItems      *prometheus.CounterVec
	batchRuns       *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	batchEstCost    *prometheus.CounterVec
	batchEstTokens  *prometheus.CounterVec
	coverageRatio   *prometheus.GaugeVec
	redisUp         prometheus.Gauge
	redisPingSecond prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

// Init registers collectors once. Returns nil when METRICS_ENABLED is false; every method is nil-safe.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry:    reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_api_requests_total", Help: "Total API requests by method/route/status."}, []string{"method", "route", "status"}),
		apiLatency:  f.NewHistogramVec(prometheus.HistogramOpts{Name: "roadmap_api_request_duration_seconds", Help: "API request latency in seconds.", Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{Name: "roadmap_api_inflight_requests", Help: "In-flight API requests."}),

		llmRequests: f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_llm_requests_total", Help: "OpenAI requests by model/endpoint/status."}, []string{"model", "endpoint", "status"}),
		llmLatency:  f.NewHistogramVec(prometheus.HistogramOpts{Name: "roadmap_llm_request_duration_seconds", Help: "OpenAI request latency in seconds.", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120}}, []string{"model", "endpoint", "status"}),
		llmTokens:   f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_llm_tokens_total", Help: "OpenAI tokens reported by the API."}, []string{"model", "kind"}),

		retrievals:      f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_retrieval_outcomes_total", Help: "Roadmap requests by retrieval outcome."}, []string{"outcome"}),
		searchLatency:   f.NewHistogramVec(prometheus.HistogramOpts{Name: "roadmap_similarity_search_duration_seconds", Help: "Similarity search latency.", Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}}, []string{"variant", "status"}),
		generations:     f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_generation_total", Help: "Generation fallback outcomes."}, []string{"status"}),
		generationTime:  f.NewHistogramVec(prometheus.HistogramOpts{Name: "roadmap_generation_duration_seconds", Help: "Generation fallback latency.", Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60}}, []string{"status"}),
		writebacks:      f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_template_writebacks_total", Help: "Generated roadmaps persisted as templates."}, []string{"status"}),
		templateUsage:   f.NewCounter(prometheus.CounterOpts{Name: "roadmap_template_selections_total", Help: "Templates selected for customization."}),
		embedCache:      f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_query_embedding_cache_total", Help: "Query embedding cache lookups."}, []string{"result"}),
		batchItems:      f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_batch_embedding_items_total", Help: "Batch embedding items by status and stage."}, []string{"status", "stage"}),
		batchRuns:       f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_batch_embedding_runs_total", Help: "Batch embedding runs by result."}, []string{"result"}),
		batchDuration:   f.NewHistogram(prometheus.HistogramOpts{Name: "roadmap_batch_embedding_run_duration_seconds", Help: "Batch embedding run duration.", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}}),
		batchEstCost:    f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_batch_embedding_estimated_cost_usd_total", Help: "Estimated embedding spend."}, []string{"model"}),
		batchEstTokens:  f.NewCounterVec(prometheus.CounterOpts{Name: "roadmap_batch_embedding_estimated_tokens_total", Help: "Estimated embedding tokens."}, []string{"model"}),
		coverageRatio:   f.NewGaugeVec(prometheus.GaugeOpts{Name: "roadmap_embedding_coverage_ratio", Help: "Share of content rows with a current embedding."}, []string{"content_type"}),
		redisUp:         f.NewGauge(prometheus.GaugeOpts{Name: "roadmap_redis_up", Help: "1 when the last redis ping succeeded."}),
		redisPingSecond: f.NewGauge(prometheus.GaugeOpts{Name: "roadmap_redis_ping_seconds", Help: "Latency of the last redis ping."}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on a dedicated listener for processes without an HTTP API.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	status = orUnknown(status)
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// IncRetrieval records hit, miss or error for one roadmap request.
func (m *Metrics) IncRetrieval(outcome string) {
	if m != nil {
		m.retrievals.WithLabelValues(orUnknown(outcome)).Inc()
	}
}

func (m *Metrics) ObserveSearch(variant, status string, dur time.Duration) {
	if m != nil {
		m.searchLatency.WithLabelValues(orUnknown(variant), orUnknown(status)).Observe(dur.Seconds())
	}
}

func (m *Metrics) ObserveGeneration(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(orUnknown(status)).Inc()
	m.generationTime.WithLabelValues(orUnknown(status)).Observe(dur.Seconds())
}

func (m *Metrics) IncTemplateWriteback(status string) {
	if m != nil {
		m.writebacks.WithLabelValues(orUnknown(status)).Inc()
	}
}

func (m *Metrics) IncTemplateSelected() {
	if m != nil {
		m.templateUsage.Inc()
	}
}

func (m *Metrics) IncEmbedCache(result string) {
	if m != nil {
		m.embedCache.WithLabelValues(orUnknown(result)).Inc()
	}
}

func (m *Metrics) IncBatchItem(status, stage string) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	m.batchItems.WithLabelValues(orUnknown(status), stage).Inc()
}

func (m *Metrics) AddBatchEstimate(model string, tokens int, cost float64) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	if tokens > 0 {
		m.batchEstTokens.WithLabelValues(model).Add(float64(tokens))
	}
	if cost > 0 {
		m.batchEstCost.WithLabelValues(model).Add(cost)
	}
}

func (m *Metrics) ObserveBatchRun(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(orUnknown(result)).Inc()
	m.batchDuration.Observe(dur.Seconds())
}

func (m *Metrics) SetCoverage(contentType string, ratio float64) {
	if m != nil {
		m.coverageRatio.WithLabelValues(orUnknown(contentType)).Set(ratio)
	}
}

// RegisterDB exports database/sql pool stats for db under db_name.
func (m *Metrics) RegisterDB(log *logger.Logger, db *gorm.DB, name string) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: database pool stats unavailable", "error", err)
		}
		return
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil && log != nil {
		log.Warn("metrics: register db stats", "error", err)
	}
}

// StartRedisProbe pings rdb every METRICS_SCRAPE_INTERVAL until ctx ends.
func (m *Metrics) StartRedisProbe(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go poll(ctx, scrapeInterval(), func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil && ctx.Err() == nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPingSecond.Set(time.Since(start).Seconds())
	})
}

func poll(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
