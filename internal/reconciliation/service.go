package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/recon/internal/platform/cache"
)

// Metrics holds the report collectors.
type Metrics struct {
	cache    *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the report collectors against registerer. A nil
// registerer leaves the collectors unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_report_cache_total",
			Help: "Pending-orders report lookups by cache result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recon_report_build_duration_seconds",
			Help:    "Time spent building the pending-orders report from the database.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.cache, m.duration)
	}
	return m
}

func (m *Metrics) result(r string) {
	if m != nil {
		m.cache.WithLabelValues(r).Inc()
	}
}

func (m *Metrics) observe(start time.Time) {
	if m != nil {
		m.duration.Observe(time.Since(start).Seconds())
	}
}

// Service serves the pending-orders report through a versioned cache.
type Service struct {
	source  Source
	cache   *cache.VersionedCache
	group   singleflight.Group
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// CacheNamespace prefixes every cached report key.
const CacheNamespace = "recon:report"

// NewService creates a new service. A nil cache builds every request.
func NewService(source Source, c *cache.VersionedCache, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:  source,
		cache:   c,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Build loads the report input and builds the report without the cache.
func (s *Service) Build(ctx context.Context, f Filter) (Report, error) {
	start := time.Now()
	defer s.metrics.observe(start)

	orders, links, err := Load(ctx, s.source, f)
	if err != nil {
		return Report{}, fmt.Errorf("load report input: %w", err)
	}
	rows := Apply(Build(orders, links), f)
	return Report{Rows: rows, Totals: Sum(rows), GeneratedAt: s.now()}, nil
}

// PendingOrders returns the report for f. Concurrent identical requests
// share one build. A cache failure degrades to a direct build.
func (s *Service) PendingOrders(ctx context.Context, f Filter) (Report, error) {
	if err := f.Validate(); err != nil {
		return Report{}, err
	}
	key, err := s.cache.BuildKey(ctx, "pending", f.Key())
	if err != nil {
		s.logger.Warn("report cache key", slog.Any("error", err))
		s.metrics.result("error")
		return s.Build(ctx, f)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var (
			report    Report
			loaderErr error
		)
		hit, err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			r, err := s.Build(ctx, f)
			loaderErr = err
			return r, err
		})
		switch {
		case err == nil && hit:
			s.metrics.result("hit")
		case err == nil:
			s.metrics.result("miss")
		case loaderErr != nil:
			return Report{}, loaderErr
		default:
			s.logger.Warn("report cache", slog.Any("error", err))
			s.metrics.result("error")
			return s.Build(ctx, f)
		}
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

// Invalidate drops every cached report. Callers invoke it after a write that
// changes orders, invoices or links.
func (s *Service) Invalidate(ctx context.Context) {
	if _, err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache invalidate", slog.Any("error", err))
	}
}
