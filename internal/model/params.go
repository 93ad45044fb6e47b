package model

import (
	"fmt"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Gate order inside every LSTM direction.
var gateNames = [...]string{"input", "forget", "output", "candidate"}

const (
	gateInput = iota
	gateForget
	gateOutput
	gateCandidate
	numGates
)

// param is one canonical parameter tensor. Graph programs bind their weight
// nodes to it before every run.
type param struct {
	name string
	t    *tensor.Dense
	bias bool
}

func (p *param) data() []float32 { return p.t.Data().([]float32) }

// Params holds every graph parameter in a fixed order. The order is shared
// by all programs so solver state lines up across batch sizes.
type Params struct {
	list   []*param
	byName map[string]*param
}

func newParams() *Params { return &Params{byName: make(map[string]*param)} }

func (ps *Params) add(name string, bias bool, shape []int, backing []float32) *param {
	p := &param{
		name: name,
		t:    tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)),
		bias: bias,
	}
	ps.list = append(ps.list, p)
	ps.byName[name] = p
	return p
}

func (ps *Params) get(name string) *param { return ps.byName[name] }

func glorot(rows, cols int) []float32 {
	return gorgonia.GlorotU(1.0)(tensor.Float32, rows, cols).([]float32)
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func gateParamName(dir, gate, kind string) string {
	return fmt.Sprintf("%s/%s/%s", dir, gate, kind)
}

// initParams creates the LSTM and projection parameters. The forget gate
// bias starts at one.
func initParams(embDim, hidden, numClasses int, dirs []string) *Params {
	ps := newParams()
	for _, dir := range dirs {
		for gi, gate := range gateNames {
			ps.add(gateParamName(dir, gate, "W"), false, []int{embDim, hidden}, glorot(embDim, hidden))
			ps.add(gateParamName(dir, gate, "U"), false, []int{hidden, hidden}, glorot(hidden, hidden))
			bias := float32(0)
			if gi == gateForget {
				bias = 1
			}
			ps.add(gateParamName(dir, gate, "b"), true, []int{1, hidden}, filled(hidden, bias))
		}
	}
	in := hidden * len(dirs)
	ps.add("head/W", false, []int{in, numClasses}, glorot(in, numClasses))
	ps.add("head/b", true, []int{1, numClasses}, filled(numClasses, 0))
	return ps
}

// randomEmbedding returns a vocab×dim table drawn uniformly from
// [-scale, scale). Row 0 is the padding row and starts at zero.
func randomEmbedding(vocab, dim int, scale float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, vocab*dim)
	for i := dim; i < len(out); i++ {
		out[i] = float32((rng.Float64()*2 - 1) * scale)
	}
	return out
}

// squaredSum returns the sum of squares of xs.
func squaredSum(xs []float32) float64 {
	var s float64
	for _, v := range xs {
		s += float64(v) * float64(v)
	}
	return s
}
