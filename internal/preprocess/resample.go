package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// TargetFrequency частота дискретизации, к которой приводится сигнал (Гц)
const TargetFrequency = 500.0

// MaxResampledSamples предел длины отведения после ресемплинга
// (около 70 минут записи при 500 Гц)
const MaxResampledSamples = 1 << 21

// ResampledLength возвращает длину отведения после ресемплинга
func ResampledLength(samples int, originalFreq float64) int {
	return int(math.Round(float64(samples) * TargetFrequency / originalFreq))
}

// Resample пересчитывает каждое отведение с originalFreq на 500 Гц методом
// Фурье: спектр обрезается или дополняется нулями, компонента Найквиста
// делится или удваивается, затем выполняется обратное преобразование.
func Resample(sig Signal, originalFreq float64) (Signal, error) {
	if math.IsNaN(originalFreq) || math.IsInf(originalFreq, 0) || originalFreq <= 0 {
		return nil, fmt.Errorf("%w: %v Hz", ErrInvalidFrequency, originalFreq)
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	nx := sig.Samples()
	// проверка до перевода в int: при малой частоте длина не помещается в int
	if length := math.Round(float64(nx) * TargetFrequency / originalFreq); length > MaxResampledSamples {
		return nil, fmt.Errorf("%w: %d samples at %v Hz resample to %.0f samples, limit %d",
			ErrInvalidInput, nx, originalFreq, length, MaxResampledSamples)
	}
	num := ResampledLength(nx, originalFreq)
	if num < 1 {
		return nil, fmt.Errorf("%w: %d samples at %v Hz resample to zero length", ErrInvalidInput, nx, originalFreq)
	}

	r := newResampler(nx, num)
	out := make(Signal, len(sig))
	for i, lead := range sig {
		out[i] = r.resample(lead)
	}
	return out, nil
}

// resampler хранит планы БПФ для пары длин, общие для всех отведений
type resampler struct {
	nx, num int
	fwd     *fourier.FFT
	inv     *fourier.FFT
}

func newResampler(nx, num int) *resampler {
	r := &resampler{nx: nx, num: num}
	if nx > 1 && num > 1 {
		r.fwd = fourier.NewFFT(nx)
		r.inv = fourier.NewFFT(num)
	}
	return r
}

func (r *resampler) resample(x []float64) []float64 {
	y := make([]float64, r.num)

	switch {
	case r.nx == 1:
		// спектр из одной постоянной составляющей
		for i := range y {
			y[i] = x[0]
		}
		return y
	case r.num == 1:
		var sum float64
		for _, v := range x {
			sum += v
		}
		y[0] = sum / float64(r.nx)
		return y
	}

	X := r.fwd.Coefficients(nil, x)
	Y := make([]complex128, r.num/2+1)

	n := r.nx
	if r.num < n {
		n = r.num
	}
	nyq := n/2 + 1
	copy(Y[:nyq], X[:nyq])

	if n%2 == 0 {
		if r.num < r.nx {
			Y[n/2] *= 2
		} else if r.nx < r.num {
			Y[n/2] *= 0.5
		}
	}

	r.inv.Sequence(y, Y)

	// Sequence не нормирует результат: 1/num от обратного БПФ и num/nx от ресемплинга
	scale := 1 / float64(r.nx)
	for i := range y {
		y[i] *= scale
	}
	return y
}
