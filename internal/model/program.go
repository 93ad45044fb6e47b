package model

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type mode int

const (
	modeEval mode = iota
	modeTrain
)

func (md mode) String() string {
	if md == modeTrain {
		return "train"
	}
	return "eval"
}

type programKey struct {
	batch int
	mode  mode
}

// feeds are the per-timestep mask inputs shared by every branch of a graph.
type feeds struct {
	masks []*gorgonia.Node // (B,1), 1 on real tokens
	holds []*gorgonia.Node // (B,1), 1 - mask
	outs  []*gorgonia.Node // (B,1), 1 on the last real token
}

// program is a compiled graph for one batch size and mode. Weight nodes are
// rebound to the canonical parameters before every run.
type program struct {
	key programKey
	g   *gorgonia.ExprGraph
	vm  gorgonia.VM

	xs []*gorgonia.Node // embedded tokens per step, (B,E)
	rs []*gorgonia.Node // adversarial perturbation per step, train mode only
	f  *feeds
	y  *gorgonia.Node // (B,C) one-hot labels
	w  *gorgonia.Node // (B) class weights

	l2Scale *gorgonia.Node
	embSq   *gorgonia.Node

	weights []*gorgonia.Node // in Params order

	costVal  gorgonia.Value
	probsVal gorgonia.Value
	xGrads   []gorgonia.Value
}

// inputs is one batch flattened into the layouts the graph expects.
type inputs struct {
	batch int
	xs    [][]float32 // T × (B·E)
	masks [][]float32 // T × B
	holds [][]float32
	outs  [][]float32
	y     []float32 // B·C
	w     []float32 // B
	wSum  float64
}

func (m *Model) program(batch int, md mode) (*program, error) {
	key := programKey{batch: batch, mode: md}
	if p, ok := m.programs[key]; ok {
		return p, nil
	}
	p, err := m.build(key)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("compiled graph program",
		zap.Int("batch", batch), zap.Stringer("mode", md), zap.Int("nodes", len(p.g.AllNodes())))
	m.programs[key] = p
	return p, nil
}

func (m *Model) build(key programKey) (p *program, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("model: build %s graph for batch %d: %v", key.mode, key.batch, r)
		}
	}()

	g := gorgonia.NewGraph()
	B, T, E, C := key.batch, m.cfg.MaxLen, m.embDim(), m.numClasses
	train := key.mode == modeTrain
	adv := train && m.cfg.AdvTrain

	p = &program{key: key, g: g, f: &feeds{}}
	column := func(name string, t int) *gorgonia.Node {
		return gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(B, 1), gorgonia.WithName(fmt.Sprintf("%s_%d", name, t)))
	}
	for t := 0; t < T; t++ {
		p.xs = append(p.xs, gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(B, E), gorgonia.WithName(fmt.Sprintf("x_%d", t))))
		p.f.masks = append(p.f.masks, column("mask", t))
		p.f.holds = append(p.f.holds, column("hold", t))
		p.f.outs = append(p.f.outs, column("out", t))
	}
	p.y = gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(B, C), gorgonia.WithName("y"))
	p.w = gorgonia.NewVector(g, tensor.Float32, gorgonia.WithShape(B), gorgonia.WithName("class_weight"))

	layers := make([]*lstmLayer, len(m.dirs))
	byName := make(map[string]*gorgonia.Node)
	for i, dir := range m.dirs {
		layers[i] = newLSTMLayer(g, dir, m.cfg.RNNCellSize, m.params)
		for _, n := range layers[i].nodes() {
			byName[n.Name()] = n
		}
	}
	head := newClassificationHead(g, m.params)
	byName[head.Linear.Name()] = head.Linear
	byName[head.Bias.Name()] = head.Bias

	var penalised []*gorgonia.Node
	for _, pr := range m.params.list {
		n, ok := byName[pr.name]
		if !ok {
			return nil, errors.Errorf("model: no node for parameter %s", pr.name)
		}
		p.weights = append(p.weights, n)
		if !pr.bias {
			penalised = append(penalised, n)
		}
	}

	encode := func(xs []*gorgonia.Node, branch string) *gorgonia.Node {
		in := xs
		if train && m.cfg.KeepProbEmb < 1 {
			in = make([]*gorgonia.Node, len(xs))
			for t, x := range xs {
				in[t] = gorgonia.Must(gorgonia.Dropout(x, 1-m.cfg.KeepProbEmb))
			}
		}
		feat := layers[0].forward(in, p.f, branch)
		if len(layers) > 1 {
			feat = gorgonia.Must(gorgonia.Concat(1, feat, layers[1].backward(in, p.f, branch)))
		}
		if train && m.cfg.KeepProbLSTM < 1 {
			feat = gorgonia.Must(gorgonia.Dropout(feat, 1-m.cfg.KeepProbLSTM))
		}
		return gorgonia.Must(gorgonia.SoftMax(gorgonia.Must(head.Forward(feat))))
	}

	probs := encode(p.xs, "clean")
	cost := gorgonia.Must(weightedCrossEntropy(probs, p.y, p.w))

	if adv {
		perturbed := make([]*gorgonia.Node, T)
		for t := 0; t < T; t++ {
			r := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(B, E), gorgonia.WithName(fmt.Sprintf("r_%d", t)))
			p.rs = append(p.rs, r)
			perturbed[t] = gorgonia.Must(gorgonia.Add(p.xs[t], r))
		}
		advCE := gorgonia.Must(weightedCrossEntropy(encode(perturbed, "adv"), p.y, p.w))
		coeff := gorgonia.NodeFromAny(g, float32(m.cfg.AdvCoeff), gorgonia.WithName("adv_coeff"))
		cost = gorgonia.Must(gorgonia.Add(cost, gorgonia.Must(gorgonia.Mul(coeff, advCE))))
	}

	if m.cfg.L2RegCoeff > 0 {
		sq := gorgonia.Must(squaredNorm(penalised))
		p.embSq = gorgonia.NewScalar(g, tensor.Float32, gorgonia.WithName("emb_sq"))
		p.l2Scale = gorgonia.NewScalar(g, tensor.Float32, gorgonia.WithName("l2_scale"))
		total := gorgonia.Must(gorgonia.Add(sq, p.embSq))
		cost = gorgonia.Must(gorgonia.Add(cost, gorgonia.Must(gorgonia.Mul(total, p.l2Scale))))
	}

	gorgonia.Read(cost, &p.costVal)
	gorgonia.Read(probs, &p.probsVal)

	if !train {
		p.vm = gorgonia.NewTapeMachine(g)
		return p, nil
	}

	wrt := append([]*gorgonia.Node(nil), p.weights...)
	needX := adv || m.trainEmbeddings()
	if needX {
		wrt = append(wrt, p.xs...)
	}
	grads, err := gorgonia.Grad(cost, wrt...)
	if err != nil {
		return nil, errors.Wrap(err, "model: symbolic gradient")
	}
	if needX {
		p.xGrads = make([]gorgonia.Value, T)
		for t := range p.xs {
			gorgonia.Read(grads[len(p.weights)+t], &p.xGrads[t])
		}
	}
	p.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(p.weights...))
	return p, nil
}

func dense(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// bind points every weight node at its canonical tensor.
func (p *program) bind(ps *Params) error {
	for i, n := range p.weights {
		if err := gorgonia.Let(n, ps.list[i].t); err != nil {
			return errors.Wrapf(err, "model: bind %s", n.Name())
		}
	}
	return nil
}

// syncBack copies solver-updated weights into the canonical tensors.
func (p *program) syncBack(ps *Params) {
	for i, n := range p.weights {
		copy(ps.list[i].data(), n.Value().Data().([]float32))
	}
}

func (p *program) zeroGrads() error {
	for _, n := range p.weights {
		gv, err := n.Grad()
		if err != nil {
			return errors.Wrapf(err, "model: gradient of %s", n.Name())
		}
		if d, ok := gv.(*tensor.Dense); ok {
			d.Zero()
		}
	}
	return nil
}

func (p *program) feed(in *inputs, l2Scale, embSq float64) error {
	var err error
	let := func(n *gorgonia.Node, v interface{}) {
		if err != nil {
			return
		}
		if e := gorgonia.Let(n, v); e != nil {
			err = errors.Wrapf(e, "model: feed %s", n.Name())
		}
	}

	B := in.batch
	E := len(in.xs[0]) / B
	for t := range p.xs {
		let(p.xs[t], dense(in.xs[t], B, E))
		let(p.f.masks[t], dense(in.masks[t], B, 1))
		let(p.f.holds[t], dense(in.holds[t], B, 1))
		let(p.f.outs[t], dense(in.outs[t], B, 1))
	}
	let(p.y, dense(in.y, B, len(in.y)/B))
	let(p.w, dense(in.w, B))
	if p.l2Scale != nil {
		let(p.l2Scale, gorgonia.NewF32(float32(l2Scale)))
		let(p.embSq, gorgonia.NewF32(float32(embSq)))
	}
	return err
}

// perturb binds one perturbation tensor per step. A nil slice binds zeros.
func (p *program) perturb(rs [][]float32, batch, embDim int) error {
	for t, n := range p.rs {
		data := make([]float32, batch*embDim)
		if rs != nil {
			copy(data, rs[t])
		}
		if err := gorgonia.Let(n, dense(data, batch, embDim)); err != nil {
			return errors.Wrapf(err, "model: feed %s", n.Name())
		}
	}
	return nil
}

// inputGrads copies the gradients of the embedded inputs out of the graph.
func (p *program) inputGrads() ([][]float32, error) {
	out := make([][]float32, len(p.xGrads))
	for t, v := range p.xGrads {
		if v == nil {
			return nil, errors.Errorf("model: no gradient read for step %d", t)
		}
		out[t] = append([]float32(nil), v.Data().([]float32)...)
	}
	return out, nil
}

func (p *program) cost() float64 {
	return float64(p.costVal.Data().(float32))
}

// probabilities returns the softmax output as B rows of C float64s.
func (p *program) probabilities(classes int) [][]float64 {
	flat := p.probsVal.Data().([]float32)
	out := make([][]float64, len(flat)/classes)
	for i := range out {
		row := make([]float64, classes)
		for c := range row {
			row[c] = float64(flat[i*classes+c])
		}
		out[i] = row
	}
	return out
}

func (p *program) close() error {
	if p.vm == nil {
		return nil
	}
	return p.vm.Close()
}
