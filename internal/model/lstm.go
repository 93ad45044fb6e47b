package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gate is one LSTM gate: input projection W, recurrent projection U and bias.
type gate struct {
	W, U, B *gorgonia.Node
}

// lstmLayer is one direction of the recurrent encoder inside a single graph.
// Its weight nodes are bound to the canonical parameters of that direction.
type lstmLayer struct {
	g      *gorgonia.ExprGraph
	dir    string
	hidden int
	gates  [numGates]gate
}

func weightNode(g *gorgonia.ExprGraph, p *param) *gorgonia.Node {
	return gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(p.t.Shape()...),
		gorgonia.WithName(p.name),
		gorgonia.WithValue(p.t))
}

func newLSTMLayer(g *gorgonia.ExprGraph, dir string, hidden int, ps *Params) *lstmLayer {
	l := &lstmLayer{g: g, dir: dir, hidden: hidden}
	for i, name := range gateNames {
		l.gates[i] = gate{
			W: weightNode(g, ps.get(gateParamName(dir, name, "W"))),
			U: weightNode(g, ps.get(gateParamName(dir, name, "U"))),
			B: weightNode(g, ps.get(gateParamName(dir, name, "b"))),
		}
	}
	return l
}

// nodes returns the weight nodes in parameter order.
func (l *lstmLayer) nodes() []*gorgonia.Node {
	out := make([]*gorgonia.Node, 0, 3*numGates)
	for _, gt := range l.gates {
		out = append(out, gt.W, gt.U, gt.B)
	}
	return out
}

func (l *lstmLayer) preact(x, h *gorgonia.Node, gt gate) *gorgonia.Node {
	xw := gorgonia.Must(gorgonia.Mul(x, gt.W))
	hu := gorgonia.Must(gorgonia.Mul(h, gt.U))
	return gorgonia.Must(gorgonia.BroadcastAdd(gorgonia.Must(gorgonia.Add(xw, hu)), gt.B, nil, []byte{0}))
}

// step advances the cell by one token. Rows whose mask is zero keep their
// previous state.
func (l *lstmLayer) step(x, h, c, mask, hold *gorgonia.Node) (*gorgonia.Node, *gorgonia.Node) {
	i := gorgonia.Must(gorgonia.Sigmoid(l.preact(x, h, l.gates[gateInput])))
	f := gorgonia.Must(gorgonia.Sigmoid(l.preact(x, h, l.gates[gateForget])))
	o := gorgonia.Must(gorgonia.Sigmoid(l.preact(x, h, l.gates[gateOutput])))
	cand := gorgonia.Must(gorgonia.Tanh(l.preact(x, h, l.gates[gateCandidate])))

	cNew := gorgonia.Must(gorgonia.Add(
		gorgonia.Must(gorgonia.HadamardProd(f, c)),
		gorgonia.Must(gorgonia.HadamardProd(i, cand))))
	hNew := gorgonia.Must(gorgonia.HadamardProd(o, gorgonia.Must(gorgonia.Tanh(cNew))))

	return carry(hNew, h, mask, hold), carry(cNew, c, mask, hold)
}

// carry returns next*mask + prev*hold with (B,1) masks broadcast over the
// hidden axis.
func carry(next, prev, mask, hold *gorgonia.Node) *gorgonia.Node {
	a := gorgonia.Must(gorgonia.BroadcastHadamardProd(next, mask, nil, []byte{1}))
	b := gorgonia.Must(gorgonia.BroadcastHadamardProd(prev, hold, nil, []byte{1}))
	return gorgonia.Must(gorgonia.Add(a, b))
}

func (l *lstmLayer) zeroState(batch int, name string) *gorgonia.Node {
	return gorgonia.NewMatrix(l.g, tensor.Float32,
		gorgonia.WithShape(batch, l.hidden),
		gorgonia.WithName(name),
		gorgonia.WithInit(gorgonia.Zeroes()))
}

// forward runs the sequence front to back and returns the hidden state at
// the position marked by each row's output mask.
func (l *lstmLayer) forward(xs []*gorgonia.Node, f *feeds, branch string) *gorgonia.Node {
	batch := xs[0].Shape()[0]
	h := l.zeroState(batch, fmt.Sprintf("%s/%s/h0", branch, l.dir))
	c := l.zeroState(batch, fmt.Sprintf("%s/%s/c0", branch, l.dir))

	var out *gorgonia.Node
	for t := range xs {
		h, c = l.step(xs[t], h, c, f.masks[t], f.holds[t])
		sel := gorgonia.Must(gorgonia.BroadcastHadamardProd(h, f.outs[t], nil, []byte{1}))
		if out == nil {
			out = sel
		} else {
			out = gorgonia.Must(gorgonia.Add(out, sel))
		}
	}
	return out
}

// backward runs the sequence back to front and returns the final state,
// which summarises each row from its last real token to its first.
func (l *lstmLayer) backward(xs []*gorgonia.Node, f *feeds, branch string) *gorgonia.Node {
	batch := xs[0].Shape()[0]
	h := l.zeroState(batch, fmt.Sprintf("%s/%s/h0", branch, l.dir))
	c := l.zeroState(batch, fmt.Sprintf("%s/%s/c0", branch, l.dir))

	for t := len(xs) - 1; t >= 0; t-- {
		h, c = l.step(xs[t], h, c, f.masks[t], f.holds[t])
	}
	return h
}
