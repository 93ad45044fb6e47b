package dataset

import (
	"fmt"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairs(d *Dataset) []string {
	out := make([]string, len(d.X))
	for i := range d.X {
		out[i] = fmt.Sprintf("%v/%d", d.X[i], d.Y[i])
	}
	sort.Strings(out)
	return out
}

func sample(n int) ([][]int, []int) {
	x := make([][]int, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		x[i] = []int{i, i * 2}
		y[i] = i % 3
	}
	return x, y
}

func TestShuffle_IsPermutation(t *testing.T) {
	x, y := sample(50)
	before := pairs(&Dataset{X: x, Y: y})

	d := New(x, y, 7)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Shuffle())
		n, err := d.Length()
		require.NoError(t, err)
		assert.Equal(t, 50, n)
		assert.Equal(t, before, pairs(d))
	}
}

func TestShuffle_Deterministic(t *testing.T) {
	x1, y1 := sample(30)
	x2, y2 := sample(30)

	a := New(x1, y1, 11)
	b := New(x2, y2, 11)
	require.NoError(t, a.Shuffle())
	require.NoError(t, b.Shuffle())

	assert.Equal(t, a.X, b.X)
	assert.Equal(t, a.Y, b.Y)

	x3, y3 := sample(30)
	c := New(x3, y3, 12)
	assert.NotEqual(t, a.Y, c.Y)
}

func TestLength_SizeMismatch(t *testing.T) {
	d := New([][]int{{1}, {2}}, []int{0, 1}, 1)
	d.Y = append(d.Y, 2)

	_, err := d.Length()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
	assert.Contains(t, err.Error(), "2 != 3")

	// a corrupted dataset is not reshuffled
	x0, y0 := append([][]int(nil), d.X...), append([]int(nil), d.Y...)
	err = d.Shuffle()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
	assert.Contains(t, err.Error(), "2 != 3")
	assert.Equal(t, x0, d.X)
	assert.Equal(t, y0, d.Y)
}

func TestAppendPrependDropFront(t *testing.T) {
	d := New(nil, nil, 3)
	d.Append([]int{1}, 0)
	d.Append([]int{2}, 1)
	d.Prepend([]int{0}, 2)

	assert.Equal(t, [][]int{{0}, {1}, {2}}, d.X)
	assert.Equal(t, []int{2, 0, 1}, d.Y)

	require.NoError(t, d.DropFront(2))
	assert.Equal(t, [][]int{{2}}, d.X)
	assert.Equal(t, []int{1}, d.Y)

	require.NoError(t, d.DropFront(10))
	n, err := d.Length()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCounts(t *testing.T) {
	d := New([][]int{{1}, {2}, {3}, {4}}, []int{0, 2, 2, 1}, 5)
	assert.Equal(t, []int{1, 1, 2}, d.Counts(3))
}

func TestSnapshotRestore(t *testing.T) {
	x, y := sample(10)
	d := New(x, y, 9)
	r := Restore(d.Snapshot())

	assert.Equal(t, d.X, r.X)
	assert.Equal(t, d.Y, r.Y)
	assert.Equal(t, int64(9), r.Seed())
}

func TestFromExamples(t *testing.T) {
	d := FromExamples([]Example{
		{TokenIDs: []int{5, 6}, Label: 1, GUID: 0},
		{TokenIDs: []int{7}, Label: 0, GUID: 1},
	}, 1)
	assert.ElementsMatch(t, []string{"[5 6]/1", "[7]/0"}, pairs(d))
}
