package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PlotRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eruption_plot_requests_total",
			Help: "Plot requests by activity kind and outcome",
		},
		[]string{"kind", "status"},
	)

	PlotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eruption_plot_duration_seconds",
			Help:    "Time to build a survivor curve plot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	CurvePoints = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eruption_curve_points",
			Help:    "Breakpoints per predicted survivor curve",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
	)

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eruption_model_loads_total",
			Help: "Survival model artifact loads",
		},
		[]string{"model", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eruption_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eruption_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	VolcanoesAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eruption_volcanoes_available",
			Help: "Volcanoes with every covariate the kind needs",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PlotRequests,
			PlotDuration,
			CurvePoints,
			ModelLoads,
			CacheHits,
			CacheMisses,
			VolcanoesAvailable,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
