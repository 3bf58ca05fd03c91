package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики загрузчика.
type Metrics struct {
	// Running — количество выполняющихся загрузок.
	Running prometheus.Gauge

	// Queued — количество запросов в очереди допуска.
	Queued prometheus.Gauge

	// Results — финальные результаты по типу (SUCCESS, CANCELLED, FAILURE).
	Results *prometheus.CounterVec

	// ProgressWriteErrors — неудачные записи прогресса в хранилище.
	ProgressWriteErrors prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
// Для тестов удобно передавать prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "downloader_running",
			Help: "Number of downloads currently holding an execution slot",
		}),
		Queued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "downloader_queued",
			Help: "Number of requests waiting in the admission queue",
		}),
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "downloader_results_total",
			Help: "Terminal download results by kind",
		}, []string{"kind"}),
		ProgressWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "downloader_progress_write_errors_total",
			Help: "Progress updates that failed to persist",
		}),
	}
}
