// Package batch materialises slices of a dataset into the fixed-width arrays
// the classifier consumes.
package batch

import (
	"github.com/pkg/errors"

	"claimspotter/internal/dataset"
)

// Batch is a padded, masked slice of examples. Every matrix is B×T or B×C
// with B the number of examples, T the maximum length and C the number of
// classes.
type Batch struct {
	IDs [][]int
	// Lengths are the true sequence lengths, clamped to T.
	Lengths []int
	// StepMask is 1 where a position holds a real token.
	StepMask [][]float32
	// OutputMask is 1 at the last real token only.
	OutputMask [][]float32
	Labels     []int
	OneHot     [][]float32
	// Weights is the class weight of each example, or 1 when unweighted.
	Weights []float32
}

// Size returns the number of examples.
func (b *Batch) Size() int { return len(b.IDs) }

// MaxLen returns T.
func (b *Batch) MaxLen() int {
	if len(b.IDs) == 0 {
		return 0
	}
	return len(b.IDs[0])
}

// Pad fits seq into maxLen positions. Long sequences keep their head; short
// ones get zeros after (post) or before the tokens. It returns the padded row
// and the number of real tokens.
func Pad(seq []int, maxLen int, post bool) ([]int, int) {
	n := len(seq)
	if n > maxLen {
		n = maxLen
	}
	out := make([]int, maxLen)
	if post {
		copy(out, seq[:n])
	} else {
		copy(out[maxLen-n:], seq[:n])
	}
	return out, n
}

// lastIndex returns the position of the last real token of a padded row.
func lastIndex(length, maxLen int, post bool) int {
	if post {
		return length - 1
	}
	return maxLen - 1
}

// Build pads x, masks it and encodes y. classWeights may be nil.
func Build(x [][]int, y []int, maxLen int, post bool, numClasses int, classWeights []float64) (*Batch, error) {
	if len(x) != len(y) {
		return nil, errors.Wrapf(dataset.ErrSizeMismatch, "%d != %d", len(x), len(y))
	}
	if maxLen <= 0 {
		return nil, errors.Errorf("batch: max length must be positive, got %d", maxLen)
	}
	if classWeights != nil && len(classWeights) != numClasses {
		return nil, errors.Errorf("batch: %d class weights for %d classes", len(classWeights), numClasses)
	}

	b := &Batch{
		IDs:        make([][]int, len(x)),
		Lengths:    make([]int, len(x)),
		StepMask:   make([][]float32, len(x)),
		OutputMask: make([][]float32, len(x)),
		Labels:     append([]int(nil), y...),
		OneHot:     make([][]float32, len(x)),
		Weights:    make([]float32, len(x)),
	}
	for i, seq := range x {
		if y[i] < 0 || y[i] >= numClasses {
			return nil, errors.Errorf("batch: label %d outside [0, %d)", y[i], numClasses)
		}
		ids, n := Pad(seq, maxLen, post)
		b.IDs[i], b.Lengths[i] = ids, n

		step := make([]float32, maxLen)
		start := 0
		if !post {
			start = maxLen - n
		}
		for t := start; t < start+n; t++ {
			step[t] = 1
		}
		b.StepMask[i] = step

		out := make([]float32, maxLen)
		if n > 0 {
			out[lastIndex(n, maxLen, post)] = 1
		}
		b.OutputMask[i] = out

		b.OneHot[i] = OneHot(y[i], numClasses)
		b.Weights[i] = 1
		if classWeights != nil {
			b.Weights[i] = float32(classWeights[y[i]])
		}
	}
	return b, nil
}

// OneHot returns a vector of length n with a single 1 at label.
func OneHot(label, n int) []float32 {
	v := make([]float32, n)
	v[label] = 1
	return v
}

// NumBatches returns ceil(n / size).
func NumBatches(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Slice returns the i-th batch of at most size examples from d. The tail
// batch is shorter rather than padded with extra rows.
func Slice(d *dataset.Dataset, i, size int) ([][]int, []int, error) {
	n, err := d.Length()
	if err != nil {
		return nil, nil, err
	}
	lo := i * size
	if lo < 0 || lo >= n {
		return nil, nil, errors.Errorf("batch: index %d out of range for %d examples", i, n)
	}
	hi := lo + size
	if hi > n {
		hi = n
	}
	return d.X[lo:hi], d.Y[lo:hi], nil
}
