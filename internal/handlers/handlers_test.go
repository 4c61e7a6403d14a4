package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"ecg-service/internal/analytics"
	"ecg-service/internal/cache"
	"ecg-service/internal/embedding"
	"ecg-service/internal/interpret"
	"ecg-service/internal/models"
	"ecg-service/internal/preprocess"
)

type failingEmbedder struct {
	err error
}

func (f failingEmbedder) Embed(ctx context.Context, lead []float64) (*mat.Dense, error) {
	return nil, f.err
}

type fixture struct {
	router   *mux.Router
	analyzer *analytics.Analyzer
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T, embedder embedding.Embedder, withRedis bool, opts Options) *fixture {
	t.Helper()

	pipeline, err := preprocess.NewPipeline()
	require.NoError(t, err)

	logger := zap.NewNop()
	f := &fixture{analyzer: analytics.NewAnalyzer(100)}

	var redisCache *cache.RedisCache
	var store embedding.FeatureStore
	if withRedis {
		f.redis = miniredis.RunT(t)
		redisCache, err = cache.NewRedisCache(f.redis.Addr(), "", 0, time.Minute)
		require.NoError(t, err)
		t.Cleanup(func() { redisCache.Close() })
		store = redisCache
	}

	extractor := embedding.NewFeatureExtractor(embedder, store, logger)
	h := NewHandler(pipeline, extractor, interpret.NewStubInterpreter(1), f.analyzer, redisCache, logger, opts)

	f.router = mux.NewRouter()
	f.router.HandleFunc("/predict", h.PredictHandler).Methods("POST", "OPTIONS")
	f.router.HandleFunc("/health", h.HealthHandler).Methods("GET", "OPTIONS")
	f.router.HandleFunc("/stats", h.StatsHandler).Methods("GET", "OPTIONS")
	f.router.Use(RequestIDMiddleware)
	f.router.Use(LoggingMiddleware(logger))
	f.router.Use(MetricsMiddleware)
	f.router.Use(CORSMiddleware)
	return f
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// sinusRhythm 12 отведений с QRS-подобными пиками на заданной ЧСС
func sinusRhythm(leads, samples int, fs, bpm float64) [][]float64 {
	period := 60 / bpm
	sig := make([][]float64, leads)
	for l := range sig {
		gain := 1 + 0.1*float64(l)
		sig[l] = make([]float64, samples)
		for i := range sig[l] {
			t := math.Mod(float64(i)/fs, period)
			qrs := math.Exp(-math.Pow((t-0.2)/0.012, 2))
			tw := 0.3 * math.Exp(-math.Pow((t-0.45)/0.05, 2))
			sig[l][i] = gain * (qrs + tw)
		}
	}
	return sig
}

func predictBody(t *testing.T, payload map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestPredict_Success(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), true, Options{})

	rec := f.do(http.MethodPost, "/predict", predictBody(t, map[string]interface{}{
		"ecg_signal":         sinusRhythm(12, 5000, 500, 72),
		"original_frequency": 500,
		"heart_rate":         72,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp models.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Contains(t, []string{
		interpret.DiagnosisNormal,
		interpret.DiagnosisArrhythmia,
		interpret.DiagnosisUncertain,
	}, resp.MockDiagnosis)
	assert.NotEmpty(t, resp.MockRecommendation)
	assert.Equal(t, "72", resp.MockECGParameters.HeartRateBPM)
	assert.Equal(t, "833", resp.MockECGParameters.RRIntervalMs)
	assert.LessOrEqual(t, resp.FeatureVectorSummary.Min, resp.FeatureVectorSummary.Mean)
	assert.GreaterOrEqual(t, resp.FeatureVectorSummary.Max, resp.FeatureVectorSummary.Mean)

	total, err := f.redis.Get(cache.PredictionsKey)
	require.NoError(t, err)
	assert.Equal(t, "1", total)
}

func TestPredict_RawKeysAndDefaultHeartRate(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	rec := f.do(http.MethodPost, "/predict", predictBody(t, map[string]interface{}{
		"ecg_signal":         sinusRhythm(1, 1000, 250, 60),
		"original_frequency": 250,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"mock_diagnosis", "mock_recommendation", "mock_ecg_parameters", "feature_vector_summary"} {
		assert.Contains(t, raw, key)
	}

	var resp models.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "75", resp.MockECGParameters.HeartRateBPM)
	assert.Equal(t, "800", resp.MockECGParameters.RRIntervalMs)
}

func TestPredict_CachedFeatures(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), true, Options{})
	body := predictBody(t, map[string]interface{}{
		"ecg_signal":         sinusRhythm(2, 1000, 500, 80),
		"original_frequency": 500,
	})

	first := f.do(http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Len(t, f.redis.Keys(), 3) // features, total, diagnosis

	second := f.do(http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b models.PredictResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.FeatureVectorSummary, b.FeatureVectorSummary)
	assert.Equal(t, a.MockDiagnosis, b.MockDiagnosis)
}

func TestPredict_BadRequests(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"ecg_signal": [[1,2,3]`, http.StatusBadRequest},
		{"missing signal", `{"original_frequency": 500}`, http.StatusBadRequest},
		{"missing frequency", `{"ecg_signal": [[1,2,3]]}`, http.StatusBadRequest},
		{"null signal", `{"ecg_signal": null, "original_frequency": 500}`, http.StatusBadRequest},
		{"empty signal", `{"ecg_signal": [], "original_frequency": 500}`, http.StatusBadRequest},
		{"empty lead", `{"ecg_signal": [[]], "original_frequency": 500}`, http.StatusBadRequest},
		{"ragged leads", `{"ecg_signal": [[1,2,3],[1,2]], "original_frequency": 500}`, http.StatusBadRequest},
		{"zero frequency", `{"ecg_signal": [[1,2,3]], "original_frequency": 0}`, http.StatusBadRequest},
		{"negative frequency", `{"ecg_signal": [[1,2,3]], "original_frequency": -250}`, http.StatusBadRequest},
		{"tiny frequency", `{"ecg_signal": [[1,2,3]], "original_frequency": 1e-12}`, http.StatusBadRequest},
		{"strings in signal", `{"ecg_signal": [["a"]], "original_frequency": 500}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/predict", []byte(tt.body))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())

			var errResp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestPredict_BodyTooLarge(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{MaxBodyBytes: 64})

	body := `{"ecg_signal": [[` + strings.Repeat("0.5,", 100) + `0.5]], "original_frequency": 500}`
	rec := f.do(http.MethodPost, "/predict", []byte(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredict_EmbedderFailure(t *testing.T) {
	f := newFixture(t, failingEmbedder{err: errors.New("model crashed")}, false, Options{})

	rec := f.do(http.MethodPost, "/predict", predictBody(t, map[string]interface{}{
		"ecg_signal":         sinusRhythm(1, 500, 500, 70),
		"original_frequency": 500,
	}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "model crashed")
}

func TestPredict_EmbedderTimeout(t *testing.T) {
	f := newFixture(t, failingEmbedder{err: context.DeadlineExceeded}, false, Options{})

	rec := f.do(http.MethodPost, "/predict", predictBody(t, map[string]interface{}{
		"ecg_signal":         sinusRhythm(1, 500, 500, 70),
		"original_frequency": 500,
	}))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestPredict_CORSPreflight(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	rec := f.do(http.MethodOptions, "/predict", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSPreflight_AllRoutes(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	for _, path := range []string{"/predict", "/health", "/stats"} {
		rec := f.do(http.MethodOptions, path, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestPredict_RequestIDPropagated(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), true, Options{})

	rec := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "local", status.Embedder)
	assert.Equal(t, "connected", status.Redis)
	assert.NotEmpty(t, status.Uptime)
}

func TestHealthHandler_RemoteEmbedderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := embedding.NewClient(server.URL, time.Second, zap.NewNop())
	f := newFixture(t, client, false, Options{})

	rec := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "unavailable", status.Embedder)
	assert.Equal(t, "disconnected", status.Redis)
}

func TestStatsHandler(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), true, Options{})
	f.analyzer.Start(1)
	defer f.analyzer.Stop()

	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/predict", predictBody(t, map[string]interface{}{
			"ecg_signal":         sinusRhythm(1, 1000, 500, float64(60+10*i)),
			"original_frequency": 500,
		}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	timeout := time.After(2 * time.Second)
	for received := 0; received < 3; received++ {
		select {
		case <-f.analyzer.GetResults():
		case <-timeout:
			t.Fatalf("Timed out waiting for drift results, got %d", received)
		}
	}

	rec := f.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalPredictions)
	assert.Equal(t, int64(0), stats.DriftAnomalies)

	var sum int64
	for _, n := range stats.Diagnoses {
		sum += n
	}
	assert.Equal(t, int64(3), sum)
	assert.Len(t, stats.Diagnoses, 3)
	assert.Equal(t, 3, stats.Observations)
}

func TestStatsHandler_WithoutRedis(t *testing.T) {
	f := newFixture(t, embedding.NewProjectionModel(100, 16, 3), false, Options{})

	rec := f.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.TotalPredictions)
	assert.Empty(t, stats.Diagnoses)
	assert.Zero(t, stats.Observations)
}
