package embedding

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Размеры локальной модели по умолчанию
const (
	DefaultFrameSize  = 320
	DefaultHiddenSize = 768
)

// ProjectionModel локальная модель без внешнего сервиса: отведение режется
// на кадры по FrameSize отсчетов, каждый кадр проецируется случайной
// гауссовой матрицей с активацией tanh. Веса генерируются один раз из seed.
type ProjectionModel struct {
	frameSize int
	weights   *mat.Dense // frameSize x hidden
	bias      []float64
}

// NewProjectionModel создает модель с фиксированными весами
func NewProjectionModel(frameSize, hiddenSize int, seed uint64) *ProjectionModel {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if hiddenSize <= 0 {
		hiddenSize = DefaultHiddenSize
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	std := 1 / math.Sqrt(float64(frameSize))

	data := make([]float64, frameSize*hiddenSize)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	bias := make([]float64, hiddenSize)
	for i := range bias {
		bias[i] = rng.NormFloat64() * 0.01
	}

	return &ProjectionModel{
		frameSize: frameSize,
		weights:   mat.NewDense(frameSize, hiddenSize, data),
		bias:      bias,
	}
}

// HiddenSize размерность скрытого состояния
func (p *ProjectionModel) HiddenSize() int {
	_, c := p.weights.Dims()
	return c
}

// Embed реализует Embedder. Последний неполный кадр дополняется нулями.
func (p *ProjectionModel) Embed(ctx context.Context, lead []float64) (*mat.Dense, error) {
	if len(lead) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	steps := (len(lead) + p.frameSize - 1) / p.frameSize
	frames := mat.NewDense(steps, p.frameSize, nil)
	for i, v := range lead {
		frames.Set(i/p.frameSize, i%p.frameSize, v)
	}

	var hidden mat.Dense
	hidden.Mul(frames, p.weights)
	hidden.Apply(func(_, j int, v float64) float64 {
		return math.Tanh(v + p.bias[j])
	}, &hidden)

	return &hidden, nil
}
