// Package preprocess реализует предобработку ЭКГ перед подачей в модель
// эмбеддингов: приведение к 12 отведениям, ресемплинг в частотной области
// до 500 Гц, полосовой КИХ-фильтр [0.05, 47] Гц и масштабирование
// каждого отведения в диапазон [-1, 1].
package preprocess

import (
	"fmt"
	"math"
)

// LeadCount число отведений, которое ожидает модель
const LeadCount = 12

// Signal двумерный сигнал: отведения x отсчеты
type Signal [][]float64

// Leads возвращает число отведений
func (s Signal) Leads() int {
	return len(s)
}

// Samples возвращает число отсчетов в отведении
func (s Signal) Samples() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Validate проверяет, что сигнал непустой, прямоугольный и конечный
func (s Signal) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no leads", ErrInvalidInput)
	}
	n := len(s[0])
	if n == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidInput)
	}
	for i, lead := range s {
		if len(lead) != n {
			return fmt.Errorf("%w: lead %d has %d samples, expected %d", ErrInvalidInput, i, len(lead), n)
		}
		for j, v := range lead {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at lead %d sample %d", ErrInvalidInput, i, j)
			}
		}
	}
	return nil
}

// NormalizeLeads приводит сигнал к 12 отведениям.
//
// Сигнал из 12 отведений копируется без изменений. Иначе весь блок (L, N)
// повторяется вдоль оси отведений и берутся первые 12 строк, то есть
// отведение i результата равно входному отведению i mod L. Для одного
// отведения это 12 одинаковых копий.
func NormalizeLeads(sig Signal) (Signal, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	out := make(Signal, LeadCount)
	for i := range out {
		src := sig[i%len(sig)]
		lead := make([]float64, len(src))
		copy(lead, src)
		out[i] = lead
	}
	return out, nil
}
