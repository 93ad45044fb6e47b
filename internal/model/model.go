// Package model implements the recurrent claim classifier on gorgonia: an
// embedding table, a uni- or bidirectional LSTM, a linear projection and a
// class weighted cross entropy objective with optional L2 and adversarial
// terms.
//
// Graphs have a fixed batch size, so the model compiles one program per
// (batch size, mode) pair on first use. All programs share the canonical
// parameter tensors held by the model.
package model

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"claimspotter/internal/batch"
	"claimspotter/internal/config"
)

var (
	// ErrShapeMismatch reports a batch or checkpoint whose dimensions do not
	// fit the model.
	ErrShapeMismatch = errors.New("model: shape mismatch")
	// ErrNoCheckpoint is returned when a directory holds no checkpoint.
	ErrNoCheckpoint = errors.New("model: no checkpoint found")
)

const embeddingInitScale = 0.1

// Model is safe for concurrent use; steps, evaluation and prediction are
// serialised.
type Model struct {
	cfg        config.ModelConfig
	numClasses int
	vocabSize  int
	dirs       []string
	logger     *zap.Logger

	mu        sync.Mutex
	params    *Params
	emb       *param
	embGrad   *tensor.Dense
	solver    gorgonia.Solver
	embSolver gorgonia.Solver
	programs  map[programKey]*program
}

// Result holds the outputs of one evaluation pass.
type Result struct {
	// Loss is the batch cost summed over examples.
	Loss        float64
	Correct     int
	Predictions []int
	Probs       [][]float64
}

// Accuracy returns the fraction of correct predictions.
func (r Result) Accuracy() float64 {
	if len(r.Predictions) == 0 {
		return 0
	}
	return float64(r.Correct) / float64(len(r.Predictions))
}

// New creates a model with freshly initialised parameters. vocabSize is used
// unless cfg.VocabSize overrides it. seed drives the embedding
// initialisation.
func New(cfg config.ModelConfig, vocabSize, numClasses int, seed int64, logger *zap.Logger) (*Model, error) {
	if cfg.VocabSize > 0 {
		vocabSize = cfg.VocabSize
	}
	if vocabSize <= 0 {
		return nil, errors.Errorf("model: vocabulary size must be positive, got %d", vocabSize)
	}
	if numClasses < 2 {
		return nil, errors.Errorf("model: need at least 2 classes, got %d", numClasses)
	}
	if cfg.MaxLen <= 0 || cfg.EmbeddingDim <= 0 || cfg.RNNCellSize <= 0 {
		return nil, errors.New("model: max_len, embedding_dim and rnn_cell_size must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dirs := []string{"fw"}
	if cfg.BidirLSTM {
		dirs = append(dirs, "bw")
	}

	m := &Model{
		cfg:        cfg,
		numClasses: numClasses,
		vocabSize:  vocabSize,
		dirs:       dirs,
		logger:     logger.Named("model"),
		params:     initParams(cfg.EmbeddingDim, cfg.RNNCellSize, numClasses, dirs),
		programs:   make(map[programKey]*program),
	}

	table := randomEmbedding(vocabSize, cfg.EmbeddingDim, embeddingInitScale, seed)
	if cfg.EmbeddingPath != "" {
		n, err := loadEmbeddingFile(cfg.EmbeddingPath, table, vocabSize, cfg.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		m.logger.Info("loaded pretrained embeddings", zap.String("path", cfg.EmbeddingPath), zap.Int("rows", n))
	}
	m.emb = &param{
		name: "embedding",
		t:    dense(table, vocabSize, cfg.EmbeddingDim),
	}

	m.solver = newSolver(cfg)
	if cfg.TrainEmbeddings {
		m.embSolver = newSolver(cfg)
		m.embGrad = tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(vocabSize, cfg.EmbeddingDim))
	}
	return m, nil
}

func newSolver(cfg config.ModelConfig) gorgonia.Solver {
	if cfg.Adam {
		return gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate))
	}
	return gorgonia.NewRMSPropSolver(gorgonia.WithLearnRate(cfg.LearningRate))
}

func (m *Model) embDim() int { return m.cfg.EmbeddingDim }

func (m *Model) trainEmbeddings() bool { return m.cfg.TrainEmbeddings }

// NumClasses returns the width of the output layer.
func (m *Model) NumClasses() int { return m.numClasses }

// MaxLen returns the sequence length every batch must be padded to.
func (m *Model) MaxLen() int { return m.cfg.MaxLen }

// PostPadding reports whether batches pad after the tokens.
func (m *Model) PostPadding() bool { return m.cfg.PostPadding }

// prepare looks up embeddings and lays the batch out per timestep.
func (m *Model) prepare(b *batch.Batch) (*inputs, error) {
	B := b.Size()
	if B == 0 {
		return nil, errors.New("model: empty batch")
	}
	if b.MaxLen() != m.cfg.MaxLen {
		return nil, errors.Wrapf(ErrShapeMismatch, "batch padded to %d, model expects %d", b.MaxLen(), m.cfg.MaxLen)
	}
	if len(b.OneHot[0]) != m.numClasses {
		return nil, errors.Wrapf(ErrShapeMismatch, "labels have %d classes, model has %d", len(b.OneHot[0]), m.numClasses)
	}

	T, E := m.cfg.MaxLen, m.embDim()
	table := m.emb.data()
	in := &inputs{
		batch: B,
		xs:    make([][]float32, T),
		masks: make([][]float32, T),
		holds: make([][]float32, T),
		outs:  make([][]float32, T),
		y:     make([]float32, 0, B*m.numClasses),
		w:     append([]float32(nil), b.Weights...),
	}
	column := make([]int, B)
	for t := 0; t < T; t++ {
		in.masks[t] = make([]float32, B)
		in.holds[t] = make([]float32, B)
		in.outs[t] = make([]float32, B)
		for i := 0; i < B; i++ {
			id := b.IDs[i][t]
			if id < 0 || id >= m.vocabSize {
				return nil, errors.Wrapf(ErrShapeMismatch, "token id %d outside vocabulary of %d", id, m.vocabSize)
			}
			column[i] = id
			in.masks[t][i] = b.StepMask[i][t]
			in.holds[t][i] = 1 - b.StepMask[i][t]
			in.outs[t][i] = b.OutputMask[i][t]
		}
		in.xs[t] = make([]float32, B*E)
		lookup(table, E, column, in.xs[t])
	}
	for i := 0; i < B; i++ {
		in.y = append(in.y, b.OneHot[i]...)
		in.wSum += float64(b.Weights[i])
	}
	return in, nil
}

// l2Terms returns the scale applied to the squared parameter norm and the
// squared norm of the embedding table. The scale folds in ½, the class
// weight sum and, for adversarial training, the second copy of the penalty
// carried by the adversarial loss.
func (m *Model) l2Terms(in *inputs, md mode) (scale, embSq float64) {
	if m.cfg.L2RegCoeff <= 0 {
		return 0, 0
	}
	scale = 0.5 * m.cfg.L2RegCoeff * in.wSum
	if md == modeTrain && m.cfg.AdvTrain {
		scale *= 1 + m.cfg.AdvCoeff
	}
	if m.cfg.TrainEmbeddings {
		embSq = squaredSum(m.emb.data())
	}
	return scale, embSq
}

// Step runs one optimisation step on b. With adversarial training the graph
// is run twice: once with a zero perturbation to obtain the input gradient,
// then with the normalised perturbation to compute the update.
func (m *Model) Step(b *batch.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := m.prepare(b)
	if err != nil {
		return err
	}
	p, err := m.program(in.batch, modeTrain)
	if err != nil {
		return err
	}
	defer p.vm.Reset()

	if err := p.bind(m.params); err != nil {
		return err
	}
	scale, embSq := m.l2Terms(in, modeTrain)
	if err := p.feed(in, scale, embSq); err != nil {
		return err
	}

	if m.cfg.AdvTrain {
		if err := p.perturb(nil, in.batch, m.embDim()); err != nil {
			return err
		}
		if err := p.vm.RunAll(); err != nil {
			return errors.Wrap(err, "model: clean pass")
		}
		grads, err := p.inputGrads()
		if err != nil {
			return err
		}
		r := perturbation(grads, in.batch, m.embDim(), m.cfg.PerturbNormLength)
		p.vm.Reset()
		if err := p.zeroGrads(); err != nil {
			return err
		}
		if err := p.perturb(r, in.batch, m.embDim()); err != nil {
			return err
		}
	}

	if err := p.vm.RunAll(); err != nil {
		return errors.Wrap(err, "model: training pass")
	}
	var xGrads [][]float32
	if m.cfg.TrainEmbeddings {
		if xGrads, err = p.inputGrads(); err != nil {
			return err
		}
	}
	if err := m.solver.Step(gorgonia.NodesToValueGrads(p.weights)); err != nil {
		return errors.Wrap(err, "model: solver step")
	}
	p.syncBack(m.params)

	if m.cfg.TrainEmbeddings {
		return m.stepEmbedding(b.IDs, xGrads, scale)
	}
	return nil
}

// stepEmbedding applies the accumulated input gradients, plus the L2
// gradient 2·scale·θ, to the embedding table.
func (m *Model) stepEmbedding(ids [][]int, xGrads [][]float32, l2Scale float64) error {
	m.embGrad.Zero()
	grad := m.embGrad.Data().([]float32)
	scatterAdd(grad, m.embDim(), ids, xGrads)
	if l2Scale > 0 {
		k := float32(2 * l2Scale)
		for i, v := range m.emb.data() {
			grad[i] += k * v
		}
	}
	err := m.embSolver.Step([]gorgonia.ValueGrad{tableGrad{value: m.emb.t, grad: m.embGrad}})
	return errors.Wrap(err, "model: embedding step")
}

// Evaluate runs b through the model without dropout or perturbation and
// reports the clean cost, predictions and probabilities.
func (m *Model) Evaluate(b *batch.Batch) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluate(b)
}

func (m *Model) evaluate(b *batch.Batch) (Result, error) {
	in, err := m.prepare(b)
	if err != nil {
		return Result{}, err
	}
	p, err := m.program(in.batch, modeEval)
	if err != nil {
		return Result{}, err
	}
	defer p.vm.Reset()

	if err := p.bind(m.params); err != nil {
		return Result{}, err
	}
	scale, embSq := m.l2Terms(in, modeEval)
	if err := p.feed(in, scale, embSq); err != nil {
		return Result{}, err
	}
	if err := p.vm.RunAll(); err != nil {
		return Result{}, errors.Wrap(err, "model: evaluation pass")
	}

	res := Result{
		Loss:        p.cost(),
		Probs:       p.probabilities(m.numClasses),
		Predictions: make([]int, in.batch),
	}
	for i, row := range res.Probs {
		res.Predictions[i] = argmax(row)
		if res.Predictions[i] == b.Labels[i] {
			res.Correct++
		}
	}
	return res, nil
}

// Predict returns class probabilities for already tokenized sequences.
func (m *Model) Predict(ids [][]int) ([][]float64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b, err := batch.Build(ids, make([]int, len(ids)), m.cfg.MaxLen, m.cfg.PostPadding, m.numClasses, nil)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.evaluate(b)
	if err != nil {
		return nil, err
	}
	return res.Probs, nil
}

// Close releases every compiled program.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for k, p := range m.programs {
		if err := p.close(); err != nil && first == nil {
			first = err
		}
		delete(m.programs, k)
	}
	return first
}

func argmax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
