// Package analytics отслеживает дрейф векторов признаков между запросами.
// Скользящие окна по среднему и разбросу признаков и z-score для детекции
// выбросов.
package analytics

import (
	"math"
	"sync"

	"ecg-service/internal/models"
)

const (
	// WindowSize размер окна (50 предсказаний)
	WindowSize = 50
	// ZScoreThreshold порог дрейфа (> 2σ)
	ZScoreThreshold = 2.0
	// MinObservations минимум наблюдений до начала детекции
	MinObservations = 10
)

// Analyzer ведет статистику признаков
type Analyzer struct {
	mu           sync.RWMutex
	meanWindow   *SlidingWindow
	stdWindow    *SlidingWindow
	observations chan models.FeatureObservation
	results      chan models.DriftResult
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// SlidingWindow кольцевой буфер с накопленными суммами
type SlidingWindow struct {
	values []float64
	size   int
	index  int
	count  int
	sum    float64
	sumSq  float64
}

// NewSlidingWindow создает окно заданного размера
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{
		values: make([]float64, size),
		size:   size,
	}
}

// Add добавляет значение, вытесняя самое старое при заполненном окне
func (sw *SlidingWindow) Add(value float64) {
	if sw.count >= sw.size {
		old := sw.values[sw.index]
		sw.sum -= old
		sw.sumSq -= old * old
	} else {
		sw.count++
	}

	sw.values[sw.index] = value
	sw.sum += value
	sw.sumSq += value * value
	sw.index = (sw.index + 1) % sw.size
}

// Mean скользящее среднее
func (sw *SlidingWindow) Mean() float64 {
	if sw.count == 0 {
		return 0
	}
	return sw.sum / float64(sw.count)
}

// StdDev выборочное стандартное отклонение (n-1). Окно оценивает разброс
// генеральной совокупности по выборке, в отличие от interpret.Summarize,
// где считается смещенное отклонение самого вектора признаков.
func (sw *SlidingWindow) StdDev() float64 {
	if sw.count < 2 {
		return 0
	}
	n := float64(sw.count)
	variance := (sw.sumSq - (sw.sum*sw.sum)/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// ZScore отклонение значения от среднего окна в σ
func (sw *SlidingWindow) ZScore(value float64) float64 {
	stdDev := sw.StdDev()
	if stdDev == 0 {
		return 0
	}
	return (value - sw.Mean()) / stdDev
}

// Count количество элементов в окне
func (sw *SlidingWindow) Count() int {
	return sw.count
}

// NewAnalyzer создает анализатор с буфером наблюдений bufferSize
func NewAnalyzer(bufferSize int) *Analyzer {
	return &Analyzer{
		meanWindow:   NewSlidingWindow(WindowSize),
		stdWindow:    NewSlidingWindow(WindowSize),
		observations: make(chan models.FeatureObservation, bufferSize),
		results:      make(chan models.DriftResult, bufferSize),
		stopChan:     make(chan struct{}),
	}
}

// Start запускает воркеры
func (a *Analyzer) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

func (a *Analyzer) worker() {
	defer a.wg.Done()
	for {
		select {
		case obs := <-a.observations:
			result := a.analyze(obs)
			select {
			case a.results <- result:
			default:
				// канал результатов переполнен
			}
		case <-a.stopChan:
			return
		}
	}
}

func (a *Analyzer) analyze(obs models.FeatureObservation) models.DriftResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	// z-score считается до добавления в окно
	var zMean, zStd float64
	if a.meanWindow.Count() >= MinObservations {
		zMean = a.meanWindow.ZScore(obs.Mean)
		zStd = a.stdWindow.ZScore(obs.StdDev)
	}

	a.meanWindow.Add(obs.Mean)
	a.stdWindow.Add(obs.StdDev)

	isDriftMean := math.Abs(zMean) > ZScoreThreshold
	isDriftStd := math.Abs(zStd) > ZScoreThreshold

	return models.DriftResult{
		Timestamp:     obs.Timestamp,
		RollingMean:   a.meanWindow.Mean(),
		RollingStdDev: a.stdWindow.Mean(),
		ZScoreMean:    zMean,
		ZScoreStdDev:  zStd,
		IsDriftMean:   isDriftMean,
		IsDriftStdDev: isDriftStd,
		DriftDetected: isDriftMean || isDriftStd,
		Diagnosis:     obs.Diagnosis,
	}
}

// Submit ставит наблюдение в очередь; false, если очередь заполнена
func (a *Analyzer) Submit(obs models.FeatureObservation) bool {
	select {
	case a.observations <- obs:
		return true
	default:
		return false
	}
}

// AnalyzeSync синхронно анализирует наблюдение
func (a *Analyzer) AnalyzeSync(obs models.FeatureObservation) models.DriftResult {
	return a.analyze(obs)
}

// GetResults возвращает канал результатов
func (a *Analyzer) GetResults() <-chan models.DriftResult {
	return a.results
}

// GetStats возвращает скользящие средние среднего и разброса признаков и число наблюдений
func (a *Analyzer) GetStats() (rollingMean, rollingStd float64, count int) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.meanWindow.Mean(), a.stdWindow.Mean(), a.meanWindow.Count()
}

// Stop останавливает воркеры
func (a *Analyzer) Stop() {
	close(a.stopChan)
	a.wg.Wait()
}
