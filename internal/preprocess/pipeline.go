package preprocess

// Pipeline последовательность шагов предобработки с заранее рассчитанным
// фильтром. После создания не изменяется и безопасен для общего доступа.
type Pipeline struct {
	taps []float64
}

// NewPipeline рассчитывает полосовой фильтр для целевой частоты 500 Гц
func NewPipeline() (*Pipeline, error) {
	taps, err := DesignBandpass(FilterTaps(TargetFrequency), BandLow, BandHigh, TargetFrequency)
	if err != nil {
		return nil, err
	}
	return &Pipeline{taps: taps}, nil
}

// Taps возвращает копию коэффициентов фильтра
func (p *Pipeline) Taps() []float64 {
	out := make([]float64, len(p.taps))
	copy(out, p.taps)
	return out
}

// Process выполняет полную предобработку: 12 отведений, 500 Гц,
// полосовой фильтр, масштабирование. Результат имеет форму
// (12, round(N*500/originalFreq)).
func (p *Pipeline) Process(raw Signal, originalFreq float64) (Signal, error) {
	sig, err := NormalizeLeads(raw)
	if err != nil {
		return nil, err
	}

	sig, err = Resample(sig, originalFreq)
	if err != nil {
		return nil, err
	}

	sig, err = applyFilter(sig, p.taps)
	if err != nil {
		return nil, err
	}

	return Scale(sig), nil
}
