package loader

import (
	"github.com/pkg/errors"
)

// collapseLabel maps a three class label onto the binary scheme. The default
// partition keeps only check-worthy claims positive; the alternate one treats
// every factual sentence as positive.
func collapseLabel(y int, alt bool) int {
	if alt {
		if y == 0 {
			return 0
		}
		return 1
	}
	if y == 2 {
		return 1
	}
	return 0
}

func collapseLabels(ys []int, alt bool) {
	for i, y := range ys {
		ys[i] = collapseLabel(y, alt)
	}
}

// balancedWeights returns n / (k * count_c) for every class c in [0, k).
// In three class mode the middle class weight is divided by four.
func balancedWeights(ys []int, k int) ([]float64, error) {
	counts := make([]int, k)
	for _, y := range ys {
		if y < 0 || y >= k {
			return nil, errors.Wrapf(ErrMalformedInput, "label %d outside [0, %d)", y, k)
		}
		counts[y]++
	}

	n := float64(len(ys))
	w := make([]float64, k)
	for c, cnt := range counts {
		if cnt == 0 {
			return nil, errors.Errorf("loader: class %d has no training examples", c)
		}
		w[c] = n / (float64(k) * float64(cnt))
	}
	if k == 3 {
		w[1] /= 4
	}
	return w, nil
}
