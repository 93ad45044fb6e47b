// Package api is the inference façade called by serving layers: it turns raw
// sentences into class probabilities and human-readable verdicts.
package api

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"claimspotter/internal/tokenizer"
)

var (
	twoClassStrings = []string{
		"Not a check-worthy factual statement",
		"Check-worthy factual statement",
	}
	threeClassStrings = []string{
		"Non-factual statement",
		"Unimportant factual statement",
		"Check-worthy factual statement",
	}
)

// Predictor maps token id sequences to per-class probabilities.
type Predictor interface {
	Predict(ids [][]int) ([][]float64, error)
	NumClasses() int
}

// Result is one scored claim as returned to callers.
type Result struct {
	Claim  string    `json:"claim"`
	Result string    `json:"result"`
	Scores []float64 `json:"scores"`
}

// ClaimSpotter scores sentences with a trained model.
type ClaimSpotter struct {
	tok       tokenizer.Tokenizer
	model     Predictor
	batchSize int
	labels    []string
	segmenter Segmenter
	logger    *zap.Logger

	mu sync.Mutex
}

// Option configures a ClaimSpotter.
type Option func(*ClaimSpotter)

// WithSegmenter replaces the sentence segmenter used by ScoreText.
func WithSegmenter(s Segmenter) Option {
	return func(c *ClaimSpotter) { c.segmenter = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *ClaimSpotter) { c.logger = l }
}

// New wires a tokenizer and a predictor together. batchSize bounds the
// number of sentences sent to the model at once.
func New(tok tokenizer.Tokenizer, model Predictor, batchSize int, opts ...Option) (*ClaimSpotter, error) {
	if tok == nil || model == nil {
		return nil, errors.New("api: tokenizer and model are required")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("api: batch size must be positive, got %d", batchSize)
	}
	c := &ClaimSpotter{
		tok:       tok,
		model:     model,
		batchSize: batchSize,
		logger:    zap.NewNop(),
	}
	switch model.NumClasses() {
	case 2:
		c.labels = twoClassStrings
	case 3:
		c.labels = threeClassStrings
	default:
		return nil, errors.Errorf("api: unsupported number of classes %d", model.NumClasses())
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.segmenter == nil {
		seg, err := NewSentenceSegmenter()
		if err != nil {
			return nil, err
		}
		c.segmenter = seg
	}
	return c, nil
}

// ReturnStrings lists the verdict labels indexed by class.
func (c *ClaimSpotter) ReturnStrings() []string {
	return append([]string(nil), c.labels...)
}

// BatchSentenceQuery returns class probabilities for every sentence, in
// input order. Blank sentences get empty scores.
func (c *ClaimSpotter) BatchSentenceQuery(sentences []string) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]float64, len(sentences))
	var (
		ids   [][]int
		index []int
	)
	for i, s := range sentences {
		if strings.TrimSpace(s) == "" {
			out[i] = []float64{}
			continue
		}
		ids = append(ids, c.tok.Encode(s))
		index = append(index, i)
	}

	for lo := 0; lo < len(ids); lo += c.batchSize {
		hi := lo + c.batchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		probs, err := c.model.Predict(ids[lo:hi])
		if err != nil {
			return nil, errors.Wrap(err, "api: predict")
		}
		if len(probs) != hi-lo {
			return nil, errors.Errorf("api: model returned %d rows for %d sentences", len(probs), hi-lo)
		}
		for j, row := range probs {
			out[index[lo+j]] = row
		}
	}
	c.logger.Debug("scored sentences", zap.Int("sentences", len(sentences)), zap.Int("scored", len(ids)))
	return out, nil
}

// SingleSentenceQuery scores one sentence.
func (c *ClaimSpotter) SingleSentenceQuery(sentence string) ([]float64, error) {
	scores, err := c.BatchSentenceQuery([]string{sentence})
	if err != nil {
		return nil, err
	}
	return scores[0], nil
}

// ScoreText splits text into sentences and scores each of them.
func (c *ClaimSpotter) ScoreText(text string) ([]Result, error) {
	sentences := c.segmenter.Segment(text)
	scores, err := c.BatchSentenceQuery(sentences)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(sentences))
	for i, s := range sentences {
		results[i] = Result{
			Claim:  s,
			Result: c.labels[argmax(scores[i])],
			Scores: scores[i],
		}
	}
	return results, nil
}

// argmax returns 0 for an empty row.
func argmax(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
