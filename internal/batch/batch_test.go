package batch

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimspotter/internal/dataset"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name    string
		seq     []int
		post    bool
		want    []int
		wantLen int
	}{
		{name: "post", seq: []int{7, 8, 9}, post: true, want: []int{7, 8, 9, 0, 0}, wantLen: 3},
		{name: "pre", seq: []int{7, 8, 9}, post: false, want: []int{0, 0, 7, 8, 9}, wantLen: 3},
		{name: "truncate keeps head", seq: []int{1, 2, 3, 4, 5, 6, 7}, post: true, want: []int{1, 2, 3, 4, 5}, wantLen: 5},
		{name: "truncate pre", seq: []int{1, 2, 3, 4, 5, 6, 7}, post: false, want: []int{1, 2, 3, 4, 5}, wantLen: 5},
		{name: "empty", seq: nil, post: true, want: []int{0, 0, 0, 0, 0}, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Pad(tt.seq, 5, tt.post)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLen, n)
		})
	}
}

func TestBuild_Masks(t *testing.T) {
	x := [][]int{{7, 8, 9}, {1, 2, 3, 4, 5, 6}}
	y := []int{1, 0}

	post, err := Build(x, y, 5, true, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{7, 8, 9, 0, 0}, {1, 2, 3, 4, 5}}, post.IDs)
	assert.Equal(t, []int{3, 5}, post.Lengths)
	assert.Equal(t, []float32{1, 1, 1, 0, 0}, post.StepMask[0])
	assert.Equal(t, []float32{0, 0, 1, 0, 0}, post.OutputMask[0])
	assert.Equal(t, []float32{0, 0, 0, 0, 1}, post.OutputMask[1])
	assert.Equal(t, [][]float32{{0, 1}, {1, 0}}, post.OneHot)
	assert.Equal(t, []float32{1, 1}, post.Weights)
	assert.Equal(t, 2, post.Size())
	assert.Equal(t, 5, post.MaxLen())

	pre, err := Build(x, y, 5, false, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 7, 8, 9}, pre.IDs[0])
	assert.Equal(t, []float32{0, 0, 1, 1, 1}, pre.StepMask[0])
	assert.Equal(t, []float32{0, 0, 0, 0, 1}, pre.OutputMask[0])
}

func TestBuild_ClassWeights(t *testing.T) {
	b, err := Build([][]int{{1}, {2}, {3}}, []int{2, 0, 1}, 3, true, 3, []float64{0.5, 0.25, 2})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0.5, 0.25}, b.Weights)
	assert.Equal(t, []float32{0, 0, 1}, b.OneHot[0])
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build([][]int{{1}}, []int{0, 1}, 3, true, 2, nil)
	assert.True(t, errors.Is(err, dataset.ErrSizeMismatch))

	_, err = Build([][]int{{1}}, []int{2}, 3, true, 2, nil)
	assert.Error(t, err)

	_, err = Build([][]int{{1}}, []int{0}, 3, true, 2, []float64{1})
	assert.Error(t, err)

	_, err = Build([][]int{{1}}, []int{0}, 0, true, 2, nil)
	assert.Error(t, err)
}

func TestNumBatches(t *testing.T) {
	assert.Equal(t, 0, NumBatches(0, 32))
	assert.Equal(t, 1, NumBatches(32, 32))
	assert.Equal(t, 2, NumBatches(33, 32))
	assert.Equal(t, 4, NumBatches(10, 3))
}

func TestSlice(t *testing.T) {
	d := dataset.Restore(dataset.Snapshot{
		X: [][]int{{0}, {1}, {2}, {3}, {4}},
		Y: []int{0, 1, 0, 1, 0},
	})

	x, y, err := Slice(d, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {1}}, x)
	assert.Equal(t, []int{0, 1}, y)

	x, y, err = Slice(d, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4}}, x)
	assert.Equal(t, []int{0}, y)

	_, _, err = Slice(d, 3, 2)
	assert.Error(t, err)
}
