// Package models содержит структуры запросов и ответов сервиса ЭКГ
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Waveform сигнал ЭКГ: отведения x отсчеты.
// Плоский массив чисел принимается как одно отведение.
type Waveform [][]float64

// UnmarshalJSON принимает number[][] или number[]
func (w *Waveform) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*w = nil
		return nil
	}

	var leads [][]float64
	if err := json.Unmarshal(trimmed, &leads); err == nil {
		*w = leads
		return nil
	}

	var single []float64
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*w = Waveform{single}
	return nil
}

// PredictRequest тело запроса POST /predict
type PredictRequest struct {
	ECGSignal         Waveform `json:"ecg_signal"`
	OriginalFrequency *float64 `json:"original_frequency"`
	HeartRate         *float64 `json:"heart_rate,omitempty"`
}

// ECGParameters синтетические клинические параметры (строки)
type ECGParameters struct {
	HeartRateBPM  string `json:"heart_rate_bpm"`
	RRIntervalMs  string `json:"rr_interval_ms"`
	PRIntervalMs  string `json:"pr_interval_ms"`
	QRSDurationMs string `json:"qrs_duration_ms"`
	QTIntervalMs  string `json:"qt_interval_ms"`
	QTcIntervalMs string `json:"qtc_interval_ms"`
}

// FeatureSummary сводная статистика вектора признаков
type FeatureSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// PredictResponse ответ POST /predict
type PredictResponse struct {
	MockDiagnosis        string         `json:"mock_diagnosis"`
	MockRecommendation   string         `json:"mock_recommendation"`
	MockECGParameters    ECGParameters  `json:"mock_ecg_parameters"`
	FeatureVectorSummary FeatureSummary `json:"feature_vector_summary"`
}

// FeatureObservation наблюдение для мониторинга дрейфа признаков
type FeatureObservation struct {
	Timestamp time.Time `json:"timestamp"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Diagnosis string    `json:"diagnosis"`
}

// DriftResult результат анализа дрейфа
type DriftResult struct {
	Timestamp     time.Time `json:"timestamp"`
	RollingMean   float64   `json:"rolling_mean"`
	RollingStdDev float64   `json:"rolling_std_dev"`
	ZScoreMean    float64   `json:"z_score_mean"`
	ZScoreStdDev  float64   `json:"z_score_std_dev"`
	IsDriftMean   bool      `json:"is_drift_mean"`
	IsDriftStdDev bool      `json:"is_drift_std_dev"`
	DriftDetected bool      `json:"drift_detected"`
	Diagnosis     string    `json:"diagnosis"`
}

// HealthStatus статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Embedder  string    `json:"embedder"`
	Redis     string    `json:"redis"`
	Uptime    string    `json:"uptime"`
}

// StatsResponse статистика сервиса
type StatsResponse struct {
	TotalPredictions  int64            `json:"total_predictions"`
	Diagnoses         map[string]int64 `json:"diagnoses"`
	DriftAnomalies    int64            `json:"drift_anomalies"`
	RollingFeatureAvg float64          `json:"rolling_feature_mean"`
	RollingFeatureStd float64          `json:"rolling_feature_std_dev"`
	Observations      int              `json:"observations"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
