// Package metrics scores predictions and exports training telemetry.
package metrics

import (
	"github.com/pkg/errors"
)

// Accuracy returns the fraction of positions where pred equals truth.
func Accuracy(truth, pred []int) (float64, error) {
	if len(truth) != len(pred) {
		return 0, errors.Errorf("metrics: %d labels, %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, nil
	}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// WeightedF1 averages the per-class F1 scores weighted by the number of true
// examples of each class. Classes only present in pred contribute zero
// weight; an undefined precision or recall counts as zero.
func WeightedF1(truth, pred []int) (float64, error) {
	if len(truth) != len(pred) {
		return 0, errors.Errorf("metrics: %d labels, %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, errors.New("metrics: weighted f1 of an empty set")
	}

	type counts struct{ tp, fp, fn int }
	per := make(map[int]*counts)
	get := func(c int) *counts {
		if per[c] == nil {
			per[c] = &counts{}
		}
		return per[c]
	}
	for i := range truth {
		if truth[i] == pred[i] {
			get(truth[i]).tp++
			continue
		}
		get(pred[i]).fp++
		get(truth[i]).fn++
	}

	var f1 float64
	for _, c := range per {
		support := c.tp + c.fn
		if support == 0 || c.tp == 0 {
			continue
		}
		precision := float64(c.tp) / float64(c.tp+c.fp)
		recall := float64(c.tp) / float64(support)
		f1 += float64(support) * 2 * precision * recall / (precision + recall)
	}
	return f1 / float64(len(truth)), nil
}
