// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecg_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecg_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"endpoint", "method"},
	)

	// InFlightRequests запросы в обработке
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_in_flight_requests",
			Help: "Number of requests currently being served",
		},
	)

	// PredictionsTotal количество предсказаний по диагнозам
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecg_predictions_total",
			Help: "Total number of predictions by mock diagnosis",
		},
		[]string{"diagnosis"},
	)

	// PreprocessLatency время предобработки сигнала
	PreprocessLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecg_preprocess_latency_seconds",
			Help:    "Signal preprocessing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	// EmbeddingLatency время вызова модели
	EmbeddingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecg_embedding_latency_seconds",
			Help:    "Embedding model latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// SignalSamples длина входных отведений
	SignalSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecg_signal_samples",
			Help:    "Number of samples per lead in incoming signals",
			Buckets: prometheus.ExponentialBuckets(250, 2, 8),
		},
	)

	// CacheHits попадания в кэш признаков
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_feature_cache_hits_total",
			Help: "Total number of feature cache hits",
		},
	)

	// CacheMisses промахи кэша признаков
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_feature_cache_misses_total",
			Help: "Total number of feature cache misses",
		},
	)

	// DriftAnomalies количество аномалий дрейфа признаков
	DriftAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecg_feature_drift_anomalies_total",
			Help: "Total number of feature drift anomalies detected",
		},
	)

	// RollingFeatureMean скользящее среднее признаков
	RollingFeatureMean = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_rolling_feature_mean",
			Help: "Rolling average of feature vector mean",
		},
	)

	// RollingFeatureStdDev скользящее среднее разброса признаков
	RollingFeatureStdDev = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_rolling_feature_std_dev",
			Help: "Rolling average of feature vector standard deviation",
		},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecg_active_goroutines",
			Help: "Number of active goroutines",
		},
	)
)

// UpdateDriftMetrics обновляет метрики дрейфа
func UpdateDriftMetrics(rollingMean, rollingStd float64, isDrift bool) {
	RollingFeatureMean.Set(rollingMean)
	RollingFeatureStdDev.Set(rollingStd)
	if isDrift {
		DriftAnomalies.Inc()
	}
}
