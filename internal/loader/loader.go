// Package loader turns raw labeled sentences into tokenized training and
// evaluation datasets. It owns label remapping, class weighting,
// oversampling and the processed-data cache.
package loader

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"claimspotter/internal/config"
	"claimspotter/internal/dataset"
	"claimspotter/internal/store"
	"claimspotter/internal/tokenizer"
	"claimspotter/internal/vocab"
)

// ErrMalformedInput is wrapped by every failure caused by the content of a
// raw data file.
var ErrMalformedInput = errors.New("loader: malformed input")

// cacheFile is the layout of the processed-data cache.
type cacheFile struct {
	Scheme    string
	MaxLen    int
	VocabSize int
	Train     dataset.Snapshot
	Eval      dataset.Snapshot
	Vocab     vocab.Vocabulary
}

// Loader holds the processed pools. It is not safe for concurrent use.
type Loader struct {
	cfg    config.DataConfig
	maxLen int
	tok    tokenizer.Tokenizer
	logger *zap.Logger

	data  *dataset.Dataset
	eval  *dataset.Dataset
	vocab vocab.Vocabulary

	classWeights []float64

	trainExamples int
	testExamples  int
	totalExamples int
}

// New validates the class configuration. Call Load before anything else.
func New(cfg config.Config, tok tokenizer.Tokenizer, logger *zap.Logger) (*Loader, error) {
	if cfg.Data.NumClasses != 2 && cfg.Data.NumClasses != 3 {
		return nil, errors.Wrapf(config.ErrInvalid, "num_classes must be 2 or 3, got %d", cfg.Data.NumClasses)
	}
	if tok == nil {
		return nil, errors.New("loader: nil tokenizer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:    cfg.Data,
		maxLen: cfg.Model.MaxLen,
		tok:    tok,
		logger: logger.Named("loader"),
	}, nil
}

// Load fills the train and eval pools, either from the cache or by parsing and
// tokenizing the raw files. A non-nil override with both pools set always
// re-tokenizes.
func (l *Loader) Load(ctx context.Context, override *RawData) error {
	var err error
	if l.cfg.UseCLEFData {
		err = l.loadCLEF(ctx)
	} else {
		err = l.loadExt(ctx, override)
	}
	if err != nil {
		return err
	}

	if l.cfg.NumClasses == 2 && !l.cfg.UseCLEFData {
		collapseLabels(l.data.Y, l.cfg.AltTwoClassCombo)
		collapseLabels(l.eval.Y, l.cfg.AltTwoClassCombo)
	}

	if l.classWeights, err = balancedWeights(l.data.Y, l.cfg.NumClasses); err != nil {
		return err
	}
	l.logger.Info("class weights computed", zap.Float64s("weights", l.classWeights))

	if err := l.data.Shuffle(); err != nil {
		return err
	}

	if l.trainExamples, err = l.data.Length(); err != nil {
		return err
	}
	if l.testExamples, err = l.eval.Length(); err != nil {
		return err
	}
	l.totalExamples = l.trainExamples + l.testExamples
	return nil
}

// CachePath derives the cache location for the disjoint dataset: the
// processed path without its extension, suffixed with the tokenizer scheme.
func CachePath(processed, scheme string) string {
	base := strings.TrimSuffix(processed, filepath.Ext(processed))
	return base + "_" + scheme + ".gob"
}

func (l *Loader) loadExt(ctx context.Context, override *RawData) error {
	path := CachePath(l.cfg.ProcessedDataPath, l.tok.Scheme())
	refresh := l.cfg.RefreshData || (override != nil && override.Train != nil && override.Eval != nil)

	if !refresh {
		ok, err := l.restore(path)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	var train, eval []RawExample
	if override != nil && override.Train != nil && override.Eval != nil {
		train, eval = override.Train, override.Eval
	} else {
		var counts [3]int
		var err error
		if train, counts, err = parseJSON(l.cfg.RawDataPath); err != nil {
			return err
		}
		l.logger.Info("parsed raw data", zap.String("path", l.cfg.RawDataPath), zap.Ints("label_counts", counts[:]))
		if eval, counts, err = parseJSON(l.cfg.RawEvalPath); err != nil {
			return err
		}
		l.logger.Info("parsed raw data", zap.String("path", l.cfg.RawEvalPath), zap.Ints("label_counts", counts[:]))
	}
	return l.process(ctx, path, train, eval, 1)
}

func (l *Loader) loadCLEF(ctx context.Context) error {
	path := l.cfg.ProcessedCLEFPath
	if !l.cfg.RefreshData {
		ok, err := l.restore(path)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	train, err := parseCSV(l.cfg.RawCLEFTrainPath)
	if err != nil {
		return err
	}
	eval, err := parseCSV(l.cfg.RawCLEFTestPath)
	if err != nil {
		return err
	}
	return l.process(ctx, path, train, eval, 0)
}

// restore loads the cache at path. It reports false when the file is absent,
// unreadable or was produced under a different tokenizer configuration.
func (l *Loader) restore(path string) (bool, error) {
	if !store.Exists(path) {
		return false, nil
	}
	var c cacheFile
	if err := store.ReadFile(path, &c); err != nil {
		l.logger.Warn("ignoring unreadable cache", zap.String("path", path), zap.Error(err))
		return false, nil
	}
	if c.Scheme != l.tok.Scheme() || c.MaxLen != l.maxLen || c.VocabSize != l.tok.VocabSize() {
		l.logger.Info("cache was built with another tokenizer configuration, recomputing",
			zap.String("path", path), zap.String("scheme", c.Scheme), zap.Int("max_len", c.MaxLen))
		return false, nil
	}
	l.logger.Info("restoring data", zap.String("path", path))
	l.data = dataset.Restore(c.Train)
	l.eval = dataset.Restore(c.Eval)
	l.vocab = c.Vocab
	return true, nil
}

// process tokenizes both pools, shifting labels by shift, and writes the
// cache.
func (l *Loader) process(ctx context.Context, path string, train, eval []RawExample, shift int) error {
	l.logger.Info("processing train data", zap.Int("examples", len(train)))
	trainEx, err := l.tokenize(ctx, train, shift)
	if err != nil {
		return err
	}
	l.logger.Info("processing eval data", zap.Int("examples", len(eval)))
	evalEx, err := l.tokenize(ctx, eval, shift)
	if err != nil {
		return err
	}

	texts := make([]vocab.LabeledText, len(train))
	for i, r := range train {
		texts[i] = vocab.LabeledText{Text: r.Text, Label: r.Label + shift}
	}
	l.vocab = vocab.Vocabulary{
		Size:   l.tok.VocabSize(),
		Scheme: l.tok.Scheme(),
		Words:  vocab.Frequencies(texts),
	}

	l.data = dataset.FromExamples(trainEx, l.cfg.RandomState)
	l.eval = dataset.FromExamples(evalEx, l.cfg.RandomState)

	c := cacheFile{
		Scheme:    l.tok.Scheme(),
		MaxLen:    l.maxLen,
		VocabSize: l.tok.VocabSize(),
		Train:     l.data.Snapshot(),
		Eval:      l.eval.Snapshot(),
		Vocab:     l.vocab,
	}
	if err := store.WriteFile(path, c); err != nil {
		return errors.Wrap(err, "loader: write cache")
	}
	l.logger.Info("refreshed data", zap.String("path", path))
	return nil
}

func (l *Loader) tokenize(ctx context.Context, raw []RawExample, shift int) ([]dataset.Example, error) {
	out := make([]dataset.Example, len(raw))
	for i, r := range raw {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = dataset.Example{TokenIDs: l.tok.Encode(r.Text), Label: r.Label + shift, GUID: i}
	}
	return out, nil
}

// TrainingData returns a freshly shuffled copy of the train pool. With
// oversampling in three class mode the pool itself is replaced by the
// resampled examples and the counters are updated.
func (l *Loader) TrainingData() (*dataset.Dataset, error) {
	if l.data == nil {
		return nil, errors.New("loader: Load has not been called")
	}
	n, err := l.data.Length()
	if err != nil {
		return nil, err
	}

	if !l.cfg.Oversample || l.cfg.NumClasses != 3 {
		x := append([][]int(nil), l.data.X...)
		y := append([]int(nil), l.data.Y...)
		ret := dataset.New(x, y, l.cfg.RandomState)
		if err := ret.Shuffle(); err != nil {
			return nil, err
		}
		return ret, nil
	}

	classes := make([][][]int, l.cfg.NumClasses)
	for i, x := range l.data.X {
		classes[l.data.Y[i]] = append(classes[l.data.Y[i]], x)
	}
	counts := make([]int, len(classes))
	for c := range classes {
		counts[c] = len(classes[c])
	}
	targets := oversampleTargets(counts)

	ret := dataset.New(nil, nil, l.cfg.RandomState)
	for c := range classes {
		drawn, err := resample(classes[c], targets[c], l.cfg.RandomState)
		if err != nil {
			return nil, errors.Wrapf(err, "class %d", c)
		}
		for _, x := range drawn {
			ret.Append(x, c)
		}
	}

	if err := l.data.DropFront(l.trainExamples); err != nil {
		return nil, err
	}
	for i := len(ret.X) - 1; i >= 0; i-- {
		l.data.Prepend(ret.X[i], ret.Y[i])
	}

	m, err := ret.Length()
	if err != nil {
		return nil, err
	}
	l.totalExamples += m - l.trainExamples
	l.trainExamples = m
	l.logger.Info("oversampled training data",
		zap.Ints("before", counts), zap.Ints("after", targets), zap.Int("pool", n))

	if err := ret.Shuffle(); err != nil {
		return nil, err
	}
	return ret, nil
}

// TestingData returns the first test_examples eval examples, or all of them
// when the setting is zero or exceeds the pool.
func (l *Loader) TestingData() (*dataset.Dataset, error) {
	if l.eval == nil {
		return nil, errors.New("loader: Load has not been called")
	}
	n, err := l.eval.Length()
	if err != nil {
		return nil, err
	}
	if l.cfg.TestExamples > 0 && l.cfg.TestExamples < n {
		n = l.cfg.TestExamples
	}
	ret := dataset.Restore(dataset.Snapshot{Seed: l.cfg.RandomState})
	for i := 0; i < n; i++ {
		ret.Append(l.eval.X[i], l.eval.Y[i])
	}
	return ret, nil
}

// ClassWeights returns the balanced per-class loss weights.
func (l *Loader) ClassWeights() []float64 { return append([]float64(nil), l.classWeights...) }

// Vocabulary returns the vocabulary stored alongside the processed data.
func (l *Loader) Vocabulary() vocab.Vocabulary { return l.vocab }

func (l *Loader) TrainExamples() int { return l.trainExamples }
func (l *Loader) TestExamples() int  { return l.testExamples }
func (l *Loader) TotalExamples() int { return l.totalExamples }
