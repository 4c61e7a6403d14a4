package preprocess

import "gonum.org/v1/gonum/floats"

// ScaleSmooth добавка к знаменателю против деления на ноль
const ScaleSmooth = 1e-8

// Scale линейно переводит каждое отведение в [-1, 1]:
// v -> 2*(v-min)/(max-min+1e-8) - 1.
// Постоянное отведение превращается в -1 по всей длине.
func Scale(sig Signal) Signal {
	out := make(Signal, len(sig))
	for i, lead := range sig {
		scaled := make([]float64, len(lead))
		if len(lead) > 0 {
			lo := floats.Min(lead)
			span := floats.Max(lead) - lo + ScaleSmooth
			for j, v := range lead {
				scaled[j] = 2*(v-lo)/span - 1
			}
		}
		out[i] = scaled
	}
	return out
}
