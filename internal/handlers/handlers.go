// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ecg-service/internal/analytics"
	"ecg-service/internal/cache"
	"ecg-service/internal/embedding"
	"ecg-service/internal/interpret"
	"ecg-service/internal/metrics"
	"ecg-service/internal/models"
	"ecg-service/internal/preprocess"
)

// Options параметры обработки запросов
type Options struct {
	DefaultHeartRate float64
	MaxBodyBytes     int64
	RequestTimeout   time.Duration
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	pipeline    *preprocess.Pipeline
	extractor   *embedding.FeatureExtractor
	interpreter interpret.Interpreter
	analyzer    *analytics.Analyzer
	cache       *cache.RedisCache
	logger      *zap.Logger
	opts        Options
	startTime   time.Time
}

// NewHandler создает новый обработчик. redisCache может быть nil.
func NewHandler(
	pipeline *preprocess.Pipeline,
	extractor *embedding.FeatureExtractor,
	interpreter interpret.Interpreter,
	analyzer *analytics.Analyzer,
	redisCache *cache.RedisCache,
	logger *zap.Logger,
	opts Options,
) *Handler {
	if opts.DefaultHeartRate == 0 {
		opts.DefaultHeartRate = 75
	}
	return &Handler{
		pipeline:    pipeline,
		extractor:   extractor,
		interpreter: interpreter,
		analyzer:    analyzer,
		cache:       redisCache,
		logger:      logger,
		opts:        opts,
		startTime:   time.Now(),
	}
}

// PredictHandler обрабатывает POST /predict
func (h *Handler) PredictHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predict"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	body := r.Body
	if h.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}

	var req models.PredictRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, endpoint, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.fail(w, r, endpoint, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.ECGSignal == nil || req.OriginalFrequency == nil {
		h.fail(w, r, endpoint, "Missing 'ecg_signal' or 'original_frequency' in request", http.StatusBadRequest)
		return
	}

	heartRate := h.opts.DefaultHeartRate
	if req.HeartRate != nil {
		heartRate = *req.HeartRate
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	metrics.SignalSamples.Observe(float64(preprocess.Signal(req.ECGSignal).Samples()))

	startPreprocess := time.Now()
	signal, err := h.pipeline.Process(preprocess.Signal(req.ECGSignal), *req.OriginalFrequency)
	metrics.PreprocessLatency.Observe(time.Since(startPreprocess).Seconds())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, preprocess.ErrFilterDesign) {
			status = http.StatusUnprocessableEntity
		} else if !errors.Is(err, preprocess.ErrInvalidInput) && !errors.Is(err, preprocess.ErrInvalidFrequency) {
			status = http.StatusInternalServerError
		}
		h.fail(w, r, endpoint, "Preprocessing failed: "+err.Error(), status)
		return
	}

	startEmbedding := time.Now()
	features, cached, err := h.extractor.Features(ctx, signal[0])
	metrics.EmbeddingLatency.Observe(time.Since(startEmbedding).Seconds())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.logger.Error("Feature extraction failed",
			zap.String("request_id", r.Header.Get(RequestIDHeader)),
			zap.Error(err),
		)
		h.fail(w, r, endpoint, "Feature extraction failed: "+err.Error(), status)
		return
	}

	if h.cache != nil {
		if cached {
			metrics.CacheHits.Inc()
		} else {
			metrics.CacheMisses.Inc()
		}
	}

	response := h.interpreter.Interpret(features, heartRate)
	metrics.PredictionsTotal.WithLabelValues(response.MockDiagnosis).Inc()

	if h.cache != nil {
		if err := h.cache.RecordPrediction(ctx, response.MockDiagnosis); err != nil {
			h.logger.Warn("Failed to record prediction", zap.Error(err))
		}
	}

	observation := models.FeatureObservation{
		Timestamp: time.Now(),
		Mean:      response.FeatureVectorSummary.Mean,
		StdDev:    response.FeatureVectorSummary.StdDev,
		Diagnosis: response.MockDiagnosis,
	}
	if !h.analyzer.Submit(observation) {
		h.logger.Debug("Drift queue is full, observation dropped")
	}

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, response, http.StatusOK)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	redisStatus := "disconnected"
	if h.cache != nil && h.cache.Ping(ctx) == nil {
		redisStatus = "connected"
	}

	embedderStatus := "local"
	if checker, ok := h.extractor.Embedder().(embedding.HealthChecker); ok {
		embedderStatus = "available"
		if err := checker.HealthCheck(ctx); err != nil {
			embedderStatus = "unavailable"
		}
	}

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Embedder:  embedderStatus,
		Redis:     redisStatus,
		Uptime:    time.Since(h.startTime).String(),
	}
	if embedderStatus == "unavailable" {
		status.Status = "degraded"
	}

	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика сервиса
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	response := models.StatsResponse{
		Diagnoses: map[string]int64{},
	}

	if h.cache != nil {
		ctx := r.Context()
		var err error
		if response.TotalPredictions, err = h.cache.GetCounter(ctx, cache.PredictionsKey); err != nil {
			h.logger.Warn("Failed to read predictions counter", zap.Error(err))
		}
		if response.DriftAnomalies, err = h.cache.GetCounter(ctx, cache.DriftKey); err != nil {
			h.logger.Warn("Failed to read drift counter", zap.Error(err))
		}
		counts, err := h.cache.DiagnosisCounts(ctx, []string{
			interpret.DiagnosisNormal,
			interpret.DiagnosisArrhythmia,
			interpret.DiagnosisUncertain,
		})
		if err != nil {
			h.logger.Warn("Failed to read diagnosis counters", zap.Error(err))
		} else {
			response.Diagnoses = counts
		}
	}

	rollingMean, rollingStd, count := h.analyzer.GetStats()
	response.RollingFeatureAvg = rollingMean
	response.RollingFeatureStd = rollingStd
	response.Observations = count

	metrics.RollingFeatureMean.Set(rollingMean)
	metrics.RollingFeatureStdDev.Set(rollingStd)

	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, response, http.StatusOK)
}

// fail отправляет ошибку и учитывает ее в метриках
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint, message string, status int) {
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	h.respondError(w, message, status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, models.ErrorResponse{Error: message}, status)
}
