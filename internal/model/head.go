package model

import (
	"gorgonia.org/gorgonia"
)

// classificationHead projects encoder features onto class logits.
type classificationHead struct {
	Linear *gorgonia.Node // (features, classes)
	Bias   *gorgonia.Node // (1, classes)
}

func newClassificationHead(g *gorgonia.ExprGraph, ps *Params) *classificationHead {
	return &classificationHead{
		Linear: weightNode(g, ps.get("head/W")),
		Bias:   weightNode(g, ps.get("head/b")),
	}
}

// Forward maps (B, features) to (B, classes) logits.
func (h *classificationHead) Forward(input *gorgonia.Node) (*gorgonia.Node, error) {
	logits, err := gorgonia.Mul(input, h.Linear)
	if err != nil {
		return nil, err
	}
	// Bias (1, C), logits (B, C).
	return gorgonia.BroadcastAdd(logits, h.Bias, nil, []byte{0})
}
