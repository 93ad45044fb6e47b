package model

import (
	"gorgonia.org/gorgonia"
)

const probEpsilon = float32(1e-7)

// weightedCrossEntropy returns -Σ_b w_b Σ_c y_bc log(p_bc + eps). The weight
// multiplies each example's loss before the batch reduction.
func weightedCrossEntropy(probs, yOneHot, weights *gorgonia.Node) (*gorgonia.Node, error) {
	epsN := gorgonia.NodeFromAny(probs.Graph(), probEpsilon)
	pSafe, err := gorgonia.Add(probs, epsN)
	if err != nil {
		return nil, err
	}
	logP, err := gorgonia.Log(pSafe)
	if err != nil {
		return nil, err
	}
	mul, err := gorgonia.HadamardProd(yOneHot, logP)
	if err != nil {
		return nil, err
	}
	perExample, err := gorgonia.Sum(mul, 1)
	if err != nil {
		return nil, err
	}
	weighted, err := gorgonia.HadamardProd(perExample, weights)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Sum(weighted)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(sum)
}

// squaredNorm returns Σθ² over every node in ws.
func squaredNorm(ws []*gorgonia.Node) (*gorgonia.Node, error) {
	var total *gorgonia.Node
	for _, w := range ws {
		sq, err := gorgonia.Square(w)
		if err != nil {
			return nil, err
		}
		s, err := gorgonia.Sum(sq)
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = s
			continue
		}
		if total, err = gorgonia.Add(total, s); err != nil {
			return nil, err
		}
	}
	return total, nil
}
