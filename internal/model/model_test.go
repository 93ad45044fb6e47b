package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claimspotter/internal/batch"
	"claimspotter/internal/config"
)

const testVocab = 20

func smallConfig() config.ModelConfig {
	cfg := config.Default().Model
	cfg.MaxLen = 6
	cfg.EmbeddingDim = 4
	cfg.RNNCellSize = 3
	cfg.KeepProbEmb = 1
	cfg.KeepProbLSTM = 1
	cfg.L2RegCoeff = 0
	cfg.AdvTrain = false
	cfg.TrainEmbeddings = false
	cfg.LearningRate = 0.05
	return cfg
}

func newTestModel(t *testing.T, cfg config.ModelConfig) *Model {
	t.Helper()
	m, err := New(cfg, testVocab, 2, 1, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

var (
	trainX = [][]int{{1, 3, 4, 2}, {1, 5, 6, 7, 2}, {1, 10, 11, 2}, {1, 12, 13, 14, 2}}
	trainY = []int{1, 1, 0, 0}
)

func trainBatch(t *testing.T, m *Model) *batch.Batch {
	t.Helper()
	b, err := batch.Build(trainX, trainY, m.MaxLen(), m.PostPadding(), m.NumClasses(), nil)
	require.NoError(t, err)
	return b
}

func TestPredict_ProbabilitiesSumToOne(t *testing.T) {
	for _, bidir := range []bool{true, false} {
		cfg := smallConfig()
		cfg.BidirLSTM = bidir
		m := newTestModel(t, cfg)

		probs, err := m.Predict(trainX)
		require.NoError(t, err)
		require.Len(t, probs, len(trainX))
		for _, row := range probs {
			require.Len(t, row, 2)
			var sum float64
			for _, p := range row {
				assert.GreaterOrEqual(t, p, 0.0)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-5)
		}
	}
}

func TestPredict_Deterministic(t *testing.T) {
	cfg := smallConfig()
	cfg.KeepProbEmb = 0.5
	cfg.KeepProbLSTM = 0.5
	m := newTestModel(t, cfg)

	a, err := m.Predict([][]int{{1, 8, 9, 2}})
	require.NoError(t, err)
	b, err := m.Predict([][]int{{1, 8, 9, 2}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := m.Predict(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStep_ReducesLoss(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*config.ModelConfig)
	}{
		{name: "plain", cfg: func(*config.ModelConfig) {}},
		{name: "pre padding", cfg: func(c *config.ModelConfig) { c.PostPadding = false }},
		{name: "rmsprop", cfg: func(c *config.ModelConfig) { c.Adam = false; c.LearningRate = 0.01 }},
		{name: "adversarial with embeddings", cfg: func(c *config.ModelConfig) {
			c.AdvTrain = true
			c.TrainEmbeddings = true
			c.L2RegCoeff = 1e-4
			c.PerturbNormLength = 0.1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.cfg(&cfg)
			m := newTestModel(t, cfg)
			b := trainBatch(t, m)

			before, err := m.Evaluate(b)
			require.NoError(t, err)
			for i := 0; i < 60; i++ {
				require.NoError(t, m.Step(b))
			}
			after, err := m.Evaluate(b)
			require.NoError(t, err)

			assert.Less(t, after.Loss, before.Loss)
			assert.False(t, math.IsNaN(after.Loss))
			assert.Len(t, after.Predictions, len(trainY))
		})
	}
}

func TestStep_AdversarialCost(t *testing.T) {
	tests := []struct {
		name       string
		normLength float64
		check      func(t *testing.T, cost, clean float64)
	}{
		{
			name:       "zero perturbation doubles the clean loss",
			normLength: 0,
			check: func(t *testing.T, cost, clean float64) {
				assert.InDelta(t, 2*clean, cost, 1e-4*clean)
			},
		},
		{
			name:       "gradient perturbation adds more than the clean loss",
			normLength: 0.5,
			check: func(t *testing.T, cost, clean float64) {
				assert.Greater(t, cost, 2*clean)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			cfg.AdvTrain = true
			cfg.AdvCoeff = 1
			cfg.PerturbNormLength = tt.normLength
			m := newTestModel(t, cfg)
			b := trainBatch(t, m)

			clean, err := m.Evaluate(b)
			require.NoError(t, err)
			require.NoError(t, m.Step(b))

			p, ok := m.programs[programKey{batch: b.Size(), mode: modeTrain}]
			require.True(t, ok)
			tt.check(t, p.cost(), clean.Loss)
		})
	}
}

func TestStep_TailBatch(t *testing.T) {
	m := newTestModel(t, smallConfig())
	full := trainBatch(t, m)
	tail, err := batch.Build(trainX[:1], trainY[:1], m.MaxLen(), true, 2, nil)
	require.NoError(t, err)

	require.NoError(t, m.Step(full))
	require.NoError(t, m.Step(tail))
	require.NoError(t, m.Step(full))
	assert.Len(t, m.programs, 2)

	res, err := m.Evaluate(tail)
	require.NoError(t, err)
	assert.Len(t, res.Probs, 1)
}

func TestStep_FrozenEmbeddings(t *testing.T) {
	m := newTestModel(t, smallConfig())
	before := append([]float32(nil), m.emb.data()...)
	require.NoError(t, m.Step(trainBatch(t, m)))
	assert.Equal(t, before, m.emb.data())
}

func TestStep_TrainedEmbeddings(t *testing.T) {
	cfg := smallConfig()
	cfg.TrainEmbeddings = true
	m := newTestModel(t, cfg)
	before := append([]float32(nil), m.emb.data()...)
	require.NoError(t, m.Step(trainBatch(t, m)))

	after := m.emb.data()
	dim := cfg.EmbeddingDim
	// token 3 occurs in the batch, token 19 does not
	assert.NotEqual(t, before[3*dim:4*dim], after[3*dim:4*dim])
	assert.Equal(t, before[19*dim:20*dim], after[19*dim:20*dim])
}

func TestEvaluate_ShapeErrors(t *testing.T) {
	m := newTestModel(t, smallConfig())

	wrongLen, err := batch.Build(trainX, trainY, 8, true, 2, nil)
	require.NoError(t, err)
	_, err = m.Evaluate(wrongLen)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	oov, err := batch.Build([][]int{{1, testVocab + 5}}, []int{0}, 6, true, 2, nil)
	require.NoError(t, err)
	_, err = m.Evaluate(oov)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	wrongClasses, err := batch.Build(trainX, trainY, 6, true, 3, nil)
	require.NoError(t, err)
	assert.True(t, errors.Is(m.Step(wrongClasses), ErrShapeMismatch))
}

func TestEvaluate_ClassWeightsScaleLoss(t *testing.T) {
	m := newTestModel(t, smallConfig())
	plain := trainBatch(t, m)
	weighted, err := batch.Build(trainX, trainY, 6, true, 2, []float64{2, 2})
	require.NoError(t, err)

	a, err := m.Evaluate(plain)
	require.NoError(t, err)
	b, err := m.Evaluate(weighted)
	require.NoError(t, err)
	assert.InDelta(t, 2*a.Loss, b.Loss, 1e-4)
	assert.Equal(t, a.Predictions, b.Predictions)
}

func TestNew_Errors(t *testing.T) {
	cfg := smallConfig()
	_, err := New(cfg, 0, 2, 1, nil)
	assert.Error(t, err)
	_, err = New(cfg, 10, 1, 1, nil)
	assert.Error(t, err)

	cfg.VocabSize = 7
	m, err := New(cfg, 0, 2, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, m.vocabSize)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.TrainEmbeddings = true

	src := newTestModel(t, cfg)
	require.NoError(t, src.Step(trainBatch(t, src)))
	want, err := src.Predict(trainX)
	require.NoError(t, err)

	_, err = src.Save(dir, 0)
	require.NoError(t, err)
	path, err := src.Save(dir, 12)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cb.ckpt-12"), path)
	_, err = src.Save(dir, 3)
	require.NoError(t, err)

	latest, err := LatestCheckpoint(dir)
	require.NoError(t, err)
	assert.Equal(t, path, latest)

	dst, err := New(cfg, testVocab, 2, 99, nil)
	require.NoError(t, err)
	defer dst.Close()
	require.NoError(t, dst.Restore(latest))

	got, err := dst.Predict(trainX)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestore_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	m := newTestModel(t, smallConfig())
	path, err := m.Save(dir, 1)
	require.NoError(t, err)

	cfg := smallConfig()
	cfg.RNNCellSize = 5
	other := newTestModel(t, cfg)
	before := append([]float32(nil), other.params.list[0].data()...)

	err = other.Restore(path)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Equal(t, before, other.params.list[0].data())
}

func TestLatestCheckpoint_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cb.ckpt-notanumber"), nil, 0o644))
	_, err := LatestCheckpoint(dir)
	assert.True(t, errors.Is(err, ErrNoCheckpoint))
}

func TestScaleL2(t *testing.T) {
	r := scaleL2([]float64{3, 4}, 5)
	assert.InDelta(t, 3, r[0], 1e-4)
	assert.InDelta(t, 4, r[1], 1e-4)

	tiny := scaleL2([]float64{3e-9, -4e-9}, 2)
	assert.InDelta(t, 2, math.Hypot(tiny[0], tiny[1]), 1e-4)

	assert.Equal(t, []float64{0, 0, 0}, scaleL2([]float64{0, 0, 0}, 5))
}

func TestPerturbation_PerExample(t *testing.T) {
	// two steps, two examples, dim 2
	grads := [][]float32{
		{3, 0, 0, 1},
		{0, 4, 0, 0},
	}
	r := perturbation(grads, 2, 2, 1)

	var n0, n1 float64
	for _, step := range r {
		n0 += float64(step[0]*step[0] + step[1]*step[1])
		n1 += float64(step[2]*step[2] + step[3]*step[3])
	}
	assert.InDelta(t, 1, math.Sqrt(n0), 1e-4)
	assert.InDelta(t, 1, math.Sqrt(n1), 1e-4)
	assert.InDelta(t, 0.6, r[0][0], 1e-4)
	assert.InDelta(t, 0.8, r[1][1], 1e-4)
	assert.InDelta(t, 1, r[0][3], 1e-4)
}

func TestScatterAdd(t *testing.T) {
	grad := make([]float32, 4*2)
	ids := [][]int{{1, 3}, {1, 0}}
	steps := [][]float32{
		{1, 1, 2, 2},
		{5, 5, 7, 7},
	}
	scatterAdd(grad, 2, ids, steps)
	assert.Equal(t, []float32{7, 7, 3, 3, 0, 0, 5, 5}, grad)
}

func TestLoadEmbeddingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emb.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 0.5 -0.5\n\n3 1 2\n"), 0o644))

	table := make([]float32, 4*2)
	n, err := loadEmbeddingFile(path, table, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0, 0, 0.5, -0.5, 0, 0, 1, 2}, table)

	require.NoError(t, os.WriteFile(path, []byte("1 0.5\n"), 0o644))
	_, err = loadEmbeddingFile(path, table, 4, 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	require.NoError(t, os.WriteFile(path, []byte("9 0.5 1\n"), 0o644))
	_, err = loadEmbeddingFile(path, table, 4, 2)
	assert.Error(t, err)
}
