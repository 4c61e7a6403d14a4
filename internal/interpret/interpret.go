// Package interpret содержит интерпретатор вектора признаков.
// StubInterpreter не является диагностической логикой: диагноз выбирается
// по порогам среднего и разброса признаков, а интервалы ЭКГ генерируются
// случайно в правдоподобных диапазонах.
package interpret

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ecg-service/internal/models"
)

// Диагнозы и рекомендации
const (
	DiagnosisNormal     = "Normal Sinus Rhythm"
	DiagnosisArrhythmia = "Possible Arrhythmia Detected"
	DiagnosisUncertain  = "Uncertain Findings"

	RecommendationNormal     = "The ECG appears to be within normal limits. Continue routine monitoring."
	RecommendationArrhythmia = "Irregularities detected in the ECG pattern. A consultation with a cardiologist is recommended."
	RecommendationUncertain  = "The ECG pattern is inconclusive. Further analysis or a longer monitoring period may be needed."
)

// Пороги эвристики
const (
	NormalMeanBound  = 0.1
	NormalStdMax     = 0.81
	ArrhythmiaStdMin = 1.0
)

// Interpreter превращает вектор признаков и ЧСС в отчет
type Interpreter interface {
	Interpret(features []float64, heartRate float64) models.PredictResponse
}

// Summarize считает среднее, смещенное стандартное отклонение, минимум и максимум
func Summarize(features []float64) models.FeatureSummary {
	if len(features) == 0 {
		return models.FeatureSummary{}
	}
	mean, std := stat.PopMeanStdDev(features, nil)
	return models.FeatureSummary{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(features),
		Max:    floats.Max(features),
	}
}

// Classify выбирает диагноз и рекомендацию по сводной статистике
func Classify(s models.FeatureSummary) (diagnosis, recommendation string) {
	switch {
	case s.Mean > -NormalMeanBound && s.Mean < NormalMeanBound && s.StdDev < NormalStdMax:
		return DiagnosisNormal, RecommendationNormal
	case s.StdDev > ArrhythmiaStdMin:
		return DiagnosisArrhythmia, RecommendationArrhythmia
	default:
		return DiagnosisUncertain, RecommendationUncertain
	}
}

// StubInterpreter заглушка интерпретатора со случайными параметрами
type StubInterpreter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStubInterpreter создает заглушку с детерминированным генератором
func NewStubInterpreter(seed uint64) *StubInterpreter {
	return &StubInterpreter{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Interpret реализует Interpreter
func (s *StubInterpreter) Interpret(features []float64, heartRate float64) models.PredictResponse {
	summary := Summarize(features)
	diagnosis, recommendation := Classify(summary)

	return models.PredictResponse{
		MockDiagnosis:        diagnosis,
		MockRecommendation:   recommendation,
		MockECGParameters:    s.parameters(heartRate),
		FeatureVectorSummary: summary,
	}
}

func (s *StubInterpreter) parameters(heartRate float64) models.ECGParameters {
	rr := 0.0
	if heartRate > 0 {
		rr = 60 / heartRate * 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return models.ECGParameters{
		HeartRateBPM:  strconv.FormatFloat(heartRate, 'f', -1, 64),
		RRIntervalMs:  fmt.Sprintf("%.0f", rr),
		PRIntervalMs:  strconv.Itoa(s.between(130, 190)),
		QRSDurationMs: strconv.Itoa(s.between(90, 110)),
		QTIntervalMs:  strconv.Itoa(s.between(380, 430)),
		QTcIntervalMs: strconv.Itoa(s.between(400, 440)),
	}
}

// between равномерно выбирает целое из [lo, hi)
func (s *StubInterpreter) between(lo, hi int) int {
	return lo + s.rng.IntN(hi-lo)
}
