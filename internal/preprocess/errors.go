package preprocess

import "errors"

// Ошибки предобработки. Проверяются через errors.Is.
var (
	// ErrInvalidInput пустой, рваный или нечисловой сигнал
	ErrInvalidInput = errors.New("invalid input signal")
	// ErrInvalidFrequency неположительная или нечисловая частота дискретизации
	ErrInvalidFrequency = errors.New("invalid sampling frequency")
	// ErrFilterDesign некорректные параметры полосового фильтра
	ErrFilterDesign = errors.New("invalid filter design")
)
