package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// scaleL2 returns normLength * g / ||g||. g is first divided by its largest
// magnitude so tiny or huge gradients keep a stable norm.
func scaleL2(g []float64, normLength float64) []float64 {
	alpha := floats.Norm(g, math.Inf(1)) + 1e-12
	scaled := floats.ScaleTo(make([]float64, len(g)), 1/alpha, g)
	l2 := alpha * math.Sqrt(floats.Dot(scaled, scaled)+1e-6)
	return floats.ScaleTo(make([]float64, len(g)), normLength/l2, g)
}

// perturbation turns per-step input gradients (T × B·E) into an adversarial
// perturbation of the same layout. Each example is normalised over all of
// its steps.
func perturbation(grads [][]float32, batch, embDim int, normLength float64) [][]float32 {
	steps := len(grads)
	out := make([][]float32, steps)
	for t := range out {
		out[t] = make([]float32, batch*embDim)
	}

	example := make([]float64, steps*embDim)
	for b := 0; b < batch; b++ {
		for t := 0; t < steps; t++ {
			row := grads[t][b*embDim : (b+1)*embDim]
			for e, v := range row {
				example[t*embDim+e] = float64(v)
			}
		}
		r := scaleL2(example, normLength)
		for t := 0; t < steps; t++ {
			dst := out[t][b*embDim : (b+1)*embDim]
			for e := range dst {
				dst[e] = float32(r[t*embDim+e])
			}
		}
	}
	return out
}
