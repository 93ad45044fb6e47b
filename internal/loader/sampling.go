package loader

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Resampling targets as multiples of the check-worthy class size, indexed by
// class.
var oversampleRatios = [3]float64{2.75, 0.90, 1.50}

// resample draws n items from pool with replacement.
func resample(pool [][]int, n int, seed int64) ([][]int, error) {
	if n == 0 {
		return nil, nil
	}
	if len(pool) == 0 {
		return nil, errors.Errorf("loader: cannot draw %d examples from an empty class", n)
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([][]int, n)
	for i := range out {
		out[i] = pool[rng.Intn(len(pool))]
	}
	return out, nil
}

// oversampleTargets returns the per-class sizes after resampling.
func oversampleTargets(counts []int) []int {
	maj := float64(counts[2])
	out := make([]int, len(oversampleRatios))
	for c, r := range oversampleRatios {
		out[c] = int(maj * r)
	}
	return out
}
