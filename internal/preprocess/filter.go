package preprocess

import (
	"fmt"
	"math"
)

const (
	// BandLow нижняя граница полосы пропускания (Гц)
	BandLow = 0.05
	// BandHigh верхняя граница полосы пропускания (Гц)
	BandHigh = 47.0
	// FilterOrderFactor порядок фильтра как доля частоты дискретизации
	FilterOrderFactor = 0.3
)

// FilterTaps возвращает число коэффициентов КИХ-фильтра для частоты fs.
// Порядок int(0.3*fs) округляется вверх до нечетного: 151 при 500 Гц.
func FilterTaps(fs float64) int {
	order := int(FilterOrderFactor * fs)
	if order%2 == 0 {
		order++
	}
	return order
}

// DesignBandpass рассчитывает линейно-фазовый полосовой КИХ-фильтр
// методом оконного синуса (окно Хэмминга). Коэффициенты нормированы на
// единичное усиление в центре полосы пропускания.
func DesignBandpass(numTaps int, low, high, fs float64) ([]float64, error) {
	nyq := fs / 2
	switch {
	case numTaps < 3:
		return nil, fmt.Errorf("%w: %d taps", ErrFilterDesign, numTaps)
	case !(low > 0) || !(high < nyq) || !(low < high):
		return nil, fmt.Errorf("%w: band [%v, %v] Hz with Nyquist %v Hz", ErrFilterDesign, low, high, nyq)
	}

	left := low / nyq
	right := high / nyq
	alpha := float64(numTaps-1) / 2

	h := make([]float64, numTaps)
	for i := range h {
		m := float64(i) - alpha
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(numTaps-1))
		h[i] = (right*sinc(right*m) - left*sinc(left*m)) * w
	}

	center := (left + right) / 2
	var gain float64
	for i, v := range h {
		gain += v * math.Cos(math.Pi*(float64(i)-alpha)*center)
	}
	for i := range h {
		h[i] /= gain
	}
	return h, nil
}

// Bandpass применяет полосовой фильтр [0.05, 47] Гц к каждому отведению
// сигнала с частотой дискретизации fs без фазового сдвига
func Bandpass(sig Signal, fs float64) (Signal, error) {
	taps, err := DesignBandpass(FilterTaps(fs), BandLow, BandHigh, fs)
	if err != nil {
		return nil, err
	}
	return applyFilter(sig, taps)
}

func applyFilter(sig Signal, taps []float64) (Signal, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	out := make(Signal, len(sig))
	for i, lead := range sig {
		out[i] = filtfilt(taps, lead)
	}
	return out, nil
}

// filtfilt прогоняет фильтр вперед и назад по сигналу, дополненному
// нечетным отражением краев на 3*len(b) отсчетов
func filtfilt(b, x []float64) []float64 {
	n := len(x)
	padlen := 3 * len(b)
	if padlen > n-1 {
		padlen = n - 1
	}

	ext := make([]float64, n+2*padlen)
	for i := 0; i < padlen; i++ {
		ext[i] = 2*x[0] - x[padlen-i]
		ext[padlen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[padlen:], x)

	y := lfilter(b, ext)
	reverse(y)
	y = lfilter(b, y)
	reverse(y)

	return y[padlen : padlen+n]
}

// lfilter свертка с начальным состоянием установившегося режима:
// до начала сигнал считается равным первому отсчету
func lfilter(b, x []float64) []float64 {
	y := make([]float64, len(x))
	for k := range x {
		var acc float64
		for j, c := range b {
			idx := k - j
			if idx < 0 {
				idx = 0
			}
			acc += c * x[idx]
		}
		y[k] = acc
	}
	return y
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
