// Package embedding вызывает предобученную модель эмбеддингов ЭКГ.
// Модель загружается один раз при старте и дальше только читается,
// поэтому один Embedder обслуживает все запросы одновременно.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyInput пустое отведение на входе модели
var ErrEmptyInput = errors.New("empty lead")

// Embedder модель: одно отведение -> скрытые состояния [T, H]
type Embedder interface {
	Embed(ctx context.Context, lead []float64) (*mat.Dense, error)
}

// HealthChecker реализуют эмбеддеры с внешней зависимостью
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MeanPool усредняет скрытые состояния по времени и возвращает вектор признаков длины H
func MeanPool(hidden *mat.Dense) []float64 {
	rows, cols := hidden.Dims()
	out := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j] += hidden.At(i, j)
		}
	}
	for j := range out {
		out[j] /= float64(rows)
	}
	return out
}

func checkFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("non-finite feature at index %d", i)
		}
	}
	return nil
}
