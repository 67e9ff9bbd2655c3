package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/domain"
	"github.com/yungbote/convolab-backend/internal/platform/envutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const meterName = "github.com/yungbote/convolab-backend"

// Metrics owns the process MeterProvider. Instruments are exported through
// the otel prometheus exporter and scraped from Handler.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	apiRequests metric.Int64Counter
	apiLatency  metric.Float64Histogram
	apiInflight metric.Int64UpDownCounter

	synthRequests metric.Int64Counter
	synthLatency  metric.Float64Histogram
	synthRetries  metric.Int64Counter

	jobRuns     metric.Int64Counter
	jobDuration metric.Float64Histogram

	lineCache metric.Int64Counter

	// last job_run count per status, refreshed by StartJobQueueCollector
	depthMu sync.Mutex
	depth   map[string]int64
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		m, err := newMetrics(prometheus.NewRegistry())
		if err != nil {
			if log != nil {
				log.Warn("metrics init failed (continuing without metrics)", "error", err)
			}
			return
		}
		otel.SetMeterProvider(m.provider)
		instance = m
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics(reg *prometheus.Registry) (*Metrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)
	m := &Metrics{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		depth:    map[string]int64{},
	}

	var errs []error
	track := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	m.apiRequests, err = meter.Int64Counter("cl_api_requests",
		metric.WithDescription("API requests by method/route/status/error kind."))
	track(err)
	m.apiLatency, err = meter.Float64Histogram("cl_api_request_duration",
		metric.WithDescription("API request latency by method/route."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30))
	track(err)
	m.apiInflight, err = meter.Int64UpDownCounter("cl_api_inflight_requests",
		metric.WithDescription("In-flight API requests."))
	track(err)

	m.synthRequests, err = meter.Int64Counter("cl_synthesis_requests",
		metric.WithDescription("Speech synthesis units by outcome."))
	track(err)
	m.synthLatency, err = meter.Float64Histogram("cl_synthesis_duration",
		metric.WithDescription("Speech synthesis latency per unit including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60))
	track(err)
	m.synthRetries, err = meter.Int64Counter("cl_synthesis_retries",
		metric.WithDescription("Speech synthesis retries after a transient failure."))
	track(err)

	m.jobRuns, err = meter.Int64Counter("cl_job_runs",
		metric.WithDescription("Job executions by type/outcome."))
	track(err)
	m.jobDuration, err = meter.Float64Histogram("cl_job_duration",
		metric.WithDescription("Job execution time by type."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800))
	track(err)

	m.lineCache, err = meter.Int64Counter("cl_line_cache",
		metric.WithDescription("Line rendering lookups by result."))
	track(err)

	_, err = meter.Int64ObservableGauge("cl_job_queue_depth",
		metric.WithDescription("Jobs per status at the last sample."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.depthMu.Lock()
			defer m.depthMu.Unlock()
			for status, n := range m.depth {
				o.Observe(n, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}))
	track(err)

	if len(errs) > 0 {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("create instruments: %w", errors.Join(errs...))
	}
	return m, nil
}

// Handler serves the prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// ObserveAPI records one request. errorKind is the apierr kind of a failed
// request and empty on success.
func (m *Metrics) ObserveAPI(method, route, status, errorKind string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if errorKind == "" {
		errorKind = "none"
	}
	ctx := context.Background()
	m.apiRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
		attribute.String("error_kind", errorKind),
	))
	m.apiLatency.Record(ctx, dur.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(context.Background(), 1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(context.Background(), -1)
}

// ObserveSynthesis records one speech unit. outcome is "ok" or "error".
func (m *Metrics) ObserveSynthesis(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.synthRequests.Add(context.Background(), 1, attrs)
	m.synthLatency.Record(context.Background(), dur.Seconds(), attrs)
}

func (m *Metrics) IncSynthesisRetry() {
	if m == nil {
		return
	}
	m.synthRetries.Add(context.Background(), 1)
}

func (m *Metrics) ObserveJob(jobType, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("outcome", outcome),
	))
	m.jobDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(attribute.String("job_type", jobType)))
}

func (m *Metrics) IncLineCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lineCache.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

// StartJobQueueCollector samples job counts per status until ctx ends. The
// gauge reports the last sample, so scrapes never hit the database.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", time.Second, 15*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.collectQueueDepth(ctx, log, db)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectQueueDepth(ctx, log, db)
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&domain.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: job queue depth query failed", "error", err)
		}
		return
	}
	depth := make(map[string]int64, len(rows))
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		depth[status] += row.Count
	}
	m.depthMu.Lock()
	m.depth = depth
	m.depthMu.Unlock()
}
