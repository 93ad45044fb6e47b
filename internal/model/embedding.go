package model

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// tableGrad exposes the embedding table and its gradient to a gorgonia
// solver. The table never lives in a graph because lookups happen in Go.
type tableGrad struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

func (t tableGrad) Value() gorgonia.Value { return t.value }

func (t tableGrad) Grad() (gorgonia.Value, error) { return t.grad, nil }

// loadEmbeddingFile overwrites rows of table from a text file where every
// line is a token id followed by dim values. Rows not listed keep their
// current values.
func loadEmbeddingFile(path string, table []float32, vocab, dim int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "model: open embeddings %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	rows, line := 0, 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != dim+1 {
			return rows, errors.Wrapf(ErrShapeMismatch, "%s:%d: %d values, want %d", path, line, len(fields)-1, dim)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id < 0 || id >= vocab {
			return rows, errors.Errorf("model: %s:%d: bad token id %q", path, line, fields[0])
		}
		row := table[id*dim : (id+1)*dim]
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return rows, errors.Wrapf(err, "model: %s:%d", path, line)
			}
			row[i] = float32(v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return rows, errors.Wrapf(err, "model: read embeddings %s", path)
	}
	return rows, nil
}

// lookup gathers the embedding rows of ids into dst, one row per id.
func lookup(table []float32, dim int, ids []int, dst []float32) {
	for i, id := range ids {
		copy(dst[i*dim:(i+1)*dim], table[id*dim:(id+1)*dim])
	}
}

// scatterAdd accumulates per-step input gradients into the rows of grad
// selected by the token ids of each example.
func scatterAdd(grad []float32, dim int, ids [][]int, stepGrads [][]float32) {
	for t, g := range stepGrads {
		for b, row := range ids {
			id := row[t]
			dst := grad[id*dim : (id+1)*dim]
			src := g[b*dim : (b+1)*dim]
			for e := range dst {
				dst[e] += src[e]
			}
		}
	}
}
