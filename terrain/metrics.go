package terrain

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome is how a build ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeEmpty    Outcome = "empty"
	OutcomeCanceled Outcome = "canceled"
	OutcomeError    Outcome = "error"
)

// Metrics receives build instrumentation of a terrain.
type Metrics interface {
	BuildFinished(outcome Outcome, elapsed time.Duration)
	CacheUsed(hits, misses int)
	MeshPublished(vertices, triangles int)
}

// NopMetrics discards all instrumentation.
type NopMetrics struct{}

func (NopMetrics) BuildFinished(Outcome, time.Duration) {}
func (NopMetrics) CacheUsed(int, int)                   {}
func (NopMetrics) MeshPublished(int, int)               {}

const outcomeLabel = "outcome"

// PrometheusMetrics exports terrain instrumentation as Prometheus
// collectors.
type PrometheusMetrics struct {
	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	meshVertices  prometheus.Gauge
	meshTriangles prometheus.Gauge
}

// NewPrometheusMetrics registers the terrain collectors with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dcterrain_builds_total",
			Help: "The number of octree builds by outcome.",
		}, []string{
			outcomeLabel,
		}),
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcterrain_build_duration_seconds",
			Help:    "The time to build, simplify and contour an octree.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{
			outcomeLabel,
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcterrain_density_cache_hits_total",
			Help: "Density evaluations served from the previous build.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dcterrain_density_cache_misses_total",
			Help: "Density evaluations computed from the base density.",
		}),
		meshVertices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dcterrain_mesh_vertices",
			Help: "Vertex count of the last published mesh.",
		}),
		meshTriangles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dcterrain_mesh_triangles",
			Help: "Triangle count of the last published mesh.",
		}),
	}
}

func (m *PrometheusMetrics) BuildFinished(outcome Outcome, elapsed time.Duration) {
	labels := prometheus.Labels{outcomeLabel: string(outcome)}
	m.builds.With(labels).Inc()
	m.buildDuration.With(labels).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) CacheUsed(hits, misses int) {
	m.cacheHits.Add(float64(hits))
	m.cacheMisses.Add(float64(misses))
}

func (m *PrometheusMetrics) MeshPublished(vertices, triangles int) {
	m.meshVertices.Set(float64(vertices))
	m.meshTriangles.Set(float64(triangles))
}
