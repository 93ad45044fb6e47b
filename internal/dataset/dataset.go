// Package dataset holds tokenized examples as two parallel slices that are
// always mutated together.
package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// ErrSizeMismatch reports that the feature and label slices diverged, which
// means the pipeline that built the dataset is corrupted.
var ErrSizeMismatch = errors.New("dataset: size of x != size of y")

// Example is one tokenized input before it is split into x and y.
type Example struct {
	TokenIDs []int
	Label    int
	GUID     int
	TextB    string
}

// Dataset pairs token id sequences (X) with class labels (Y).
type Dataset struct {
	X    [][]int
	Y    []int
	seed int64
	rng  *rand.Rand
}

// New builds a Dataset over x and y and shuffles it once with a generator
// seeded from seed. The slices are used as is, not copied. Mismatched slices
// are kept unshuffled; Length and Shuffle report them.
func New(x [][]int, y []int, seed int64) *Dataset {
	d := &Dataset{
		X:    x,
		Y:    y,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
	_ = d.Shuffle()
	return d
}

// FromExamples splits examples into a Dataset.
func FromExamples(examples []Example, seed int64) *Dataset {
	x := make([][]int, len(examples))
	y := make([]int, len(examples))
	for i, ex := range examples {
		x[i] = ex.TokenIDs
		y[i] = ex.Label
	}
	return New(x, y, seed)
}

// Seed returns the seed the shuffle generator was created with.
func (d *Dataset) Seed() int64 { return d.seed }

// Shuffle applies one permutation, drawn from the dataset's generator, to X
// and Y jointly. Mismatched slices are left untouched and ErrSizeMismatch is
// returned.
func (d *Dataset) Shuffle() error {
	if len(d.X) != len(d.Y) {
		return errors.Wrapf(ErrSizeMismatch, "shuffle: %d != %d", len(d.X), len(d.Y))
	}
	d.rng.Shuffle(len(d.X), func(i, j int) {
		d.X[i], d.X[j] = d.X[j], d.X[i]
		d.Y[i], d.Y[j] = d.Y[j], d.Y[i]
	})
	return nil
}

// Length returns the common length of X and Y.
func (d *Dataset) Length() (int, error) {
	if len(d.X) != len(d.Y) {
		return 0, errors.Wrapf(ErrSizeMismatch, "%d != %d", len(d.X), len(d.Y))
	}
	return len(d.X), nil
}

// Append adds one example at the end.
func (d *Dataset) Append(x []int, y int) {
	d.X = append(d.X, x)
	d.Y = append(d.Y, y)
}

// Prepend inserts one example at the front.
func (d *Dataset) Prepend(x []int, y int) {
	d.X = append([][]int{x}, d.X...)
	d.Y = append([]int{y}, d.Y...)
}

// DropFront removes the first n examples, or all of them when n exceeds the
// length.
func (d *Dataset) DropFront(n int) error {
	l, err := d.Length()
	if err != nil {
		return err
	}
	if n > l {
		n = l
	}
	d.X = append([][]int(nil), d.X[n:]...)
	d.Y = append([]int(nil), d.Y[n:]...)
	return nil
}

// Counts returns the number of examples per label for labels in [0, numClasses).
func (d *Dataset) Counts(numClasses int) []int {
	out := make([]int, numClasses)
	for _, y := range d.Y {
		if y >= 0 && y < numClasses {
			out[y]++
		}
	}
	return out
}

// Snapshot is the serialisable form of a Dataset.
type Snapshot struct {
	X    [][]int
	Y    []int
	Seed int64
}

// Snapshot captures the current order and seed.
func (d *Dataset) Snapshot() Snapshot {
	return Snapshot{X: d.X, Y: d.Y, Seed: d.seed}
}

// Restore rebuilds a Dataset from s without reshuffling.
func Restore(s Snapshot) *Dataset {
	return &Dataset{
		X:    s.X,
		Y:    s.Y,
		seed: s.Seed,
		rng:  rand.New(rand.NewSource(s.Seed)),
	}
}
