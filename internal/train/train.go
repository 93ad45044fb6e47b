// Package train drives the epoch loop of the claim classifier: optimizer
// steps, per-epoch statistics, periodic validation and checkpointing.
package train

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"claimspotter/internal/batch"
	"claimspotter/internal/config"
	"claimspotter/internal/dataset"
	"claimspotter/internal/metrics"
	"claimspotter/internal/model"
)

// Classifier is the part of model.Model the trainer depends on.
type Classifier interface {
	Step(b *batch.Batch) error
	Evaluate(b *batch.Batch) (model.Result, error)
	Save(dir string, epoch int) (string, error)
	NumClasses() int
	MaxLen() int
	PostPadding() bool
}

// EpochStats summarises one pass over the training set.
type EpochStats struct {
	Epoch    int
	Loss     float64
	Accuracy float64
	Took     time.Duration
}

// Validation holds the metrics of one pass over the evaluation set.
type Validation struct {
	Epoch    int
	Loss     float64
	Accuracy float64
	F1       float64
}

// Summary is returned by Run.
type Summary struct {
	Epochs             []EpochStats
	Validations        []Validation
	ValidationFailures int
	Checkpoints        []string
}

// Trainer runs the epoch loop against a Classifier.
type Trainer struct {
	cfg          config.TrainConfig
	model        Classifier
	classWeights []float64
	recorder     metrics.Recorder
	logger       *zap.Logger

	now func() time.Time
}

// New returns a trainer. classWeights are attached to every batch only when
// cfg.Model.WeightClassesLoss is set; recorder may be nil.
func New(cfg config.Config, m Classifier, classWeights []float64, recorder metrics.Recorder, logger *zap.Logger) (*Trainer, error) {
	if m == nil {
		return nil, errors.New("train: nil classifier")
	}
	if cfg.Train.BatchSize <= 0 {
		return nil, errors.Wrapf(config.ErrInvalid, "batch_size must be positive, got %d", cfg.Train.BatchSize)
	}
	if cfg.Train.StatPrintInterval <= 0 || cfg.Train.ModelSaveInterval <= 0 {
		return nil, errors.Wrap(config.ErrInvalid, "stat_print_interval and model_save_interval must be positive")
	}
	var weights []float64
	if cfg.Model.WeightClassesLoss {
		if len(classWeights) != m.NumClasses() {
			return nil, errors.Errorf("train: %d class weights for %d classes", len(classWeights), m.NumClasses())
		}
		weights = append(weights, classWeights...)
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		cfg:          cfg.Train,
		model:        m,
		classWeights: weights,
		recorder:     recorder,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Run trains for MaxSteps epochs over trainSet, validating on evalSet every
// StatPrintInterval epochs when it is non-empty. A final checkpoint keyed by
// MaxSteps is always written. Cancellation is observed between epochs.
func (t *Trainer) Run(ctx context.Context, trainSet, evalSet *dataset.Dataset) (Summary, error) {
	var sum Summary
	n, err := trainSet.Length()
	if err != nil {
		return sum, errors.Wrap(err, "train: training set")
	}
	if n == 0 && t.cfg.MaxSteps > 0 {
		return sum, errors.New("train: empty training set")
	}
	evalN := 0
	if evalSet != nil {
		if evalN, err = evalSet.Length(); err != nil {
			return sum, errors.Wrap(err, "train: evaluation set")
		}
	}

	t.logger.Info("starting training",
		zap.Int("train_examples", n),
		zap.Int("eval_examples", evalN),
		zap.Int("epochs", t.cfg.MaxSteps),
		zap.Int("batch_size", t.cfg.BatchSize),
	)

	reportStart, sinceReport := t.now(), 0
	for epoch := 0; epoch < t.cfg.MaxSteps; epoch++ {
		if err := ctx.Err(); err != nil {
			return sum, errors.Wrapf(err, "train: stopped before epoch %d", epoch+1)
		}
		sinceReport++

		stats, err := t.epoch(trainSet, n)
		if err != nil {
			return sum, errors.Wrapf(err, "train: epoch %d", epoch+1)
		}
		stats.Epoch = epoch
		sum.Epochs = append(sum.Epochs, stats)
		t.recorder.ObserveEpoch(epoch, stats.Loss, stats.Accuracy, stats.Took)

		if epoch%t.cfg.StatPrintInterval == 0 {
			fields := []zap.Field{
				zap.Int("epoch", epoch+1),
				zap.Float64("loss", stats.Loss),
				zap.Float64("accuracy", stats.Accuracy),
			}
			if evalN > 0 {
				v, err := t.validate(evalSet, evalN)
				if err != nil {
					sum.ValidationFailures++
					t.recorder.ValidationFailed()
					t.logger.Warn("validation failed", zap.Int("epoch", epoch+1), zap.Error(err))
				} else {
					v.Epoch = epoch
					sum.Validations = append(sum.Validations, v)
					t.recorder.ObserveValidation(v.Loss, v.Accuracy, v.F1)
					fields = append(fields,
						zap.Float64("val_loss", v.Loss),
						zap.Float64("val_accuracy", v.Accuracy),
						zap.Float64("val_f1", v.F1),
					)
				}
			}
			perEpoch := t.now().Sub(reportStart).Seconds() / float64(sinceReport)
			fields = append(fields, zap.Float64("sec_per_epoch", perEpoch))
			t.logger.Info("epoch complete", fields...)
			reportStart, sinceReport = t.now(), 0
		}

		if epoch%t.cfg.ModelSaveInterval == 0 && epoch != 0 {
			path, err := t.save(epoch)
			if err != nil {
				return sum, err
			}
			sum.Checkpoints = append(sum.Checkpoints, path)
		}
	}

	t.logger.Info("training complete, saving final model")
	path, err := t.save(t.cfg.MaxSteps)
	if err != nil {
		return sum, err
	}
	sum.Checkpoints = append(sum.Checkpoints, path)
	return sum, nil
}

func (t *Trainer) epoch(d *dataset.Dataset, n int) (EpochStats, error) {
	start := t.now()
	var loss, correct float64
	seen := 0
	for i := 0; i < batch.NumBatches(n, t.cfg.BatchSize); i++ {
		b, err := t.batch(d, i)
		if err != nil {
			return EpochStats{}, err
		}
		if err := t.model.Step(b); err != nil {
			return EpochStats{}, err
		}
		res, err := t.model.Evaluate(b)
		if err != nil {
			return EpochStats{}, err
		}
		loss += res.Loss
		correct += res.Accuracy() * float64(b.Size())
		seen += b.Size()
	}
	return EpochStats{
		Loss:     loss / float64(seen),
		Accuracy: correct / float64(seen),
		Took:     t.now().Sub(start),
	}, nil
}

func (t *Trainer) validate(d *dataset.Dataset, n int) (Validation, error) {
	var loss, correct float64
	truth := make([]int, 0, n)
	pred := make([]int, 0, n)
	for i := 0; i < batch.NumBatches(n, t.cfg.BatchSize); i++ {
		b, err := t.batch(d, i)
		if err != nil {
			return Validation{}, err
		}
		res, err := t.model.Evaluate(b)
		if err != nil {
			return Validation{}, err
		}
		loss += res.Loss
		correct += res.Accuracy() * float64(b.Size())
		truth = append(truth, b.Labels...)
		pred = append(pred, res.Predictions...)
	}
	f1, err := metrics.WeightedF1(truth, pred)
	if err != nil {
		return Validation{}, err
	}
	return Validation{
		Loss:     loss / float64(len(truth)),
		Accuracy: correct / float64(len(truth)),
		F1:       f1,
	}, nil
}

func (t *Trainer) batch(d *dataset.Dataset, i int) (*batch.Batch, error) {
	x, y, err := batch.Slice(d, i, t.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	return batch.Build(x, y, t.model.MaxLen(), t.model.PostPadding(), t.model.NumClasses(), t.classWeights)
}

func (t *Trainer) save(epoch int) (string, error) {
	path, err := t.model.Save(t.cfg.OutputDir, epoch)
	if err != nil {
		return "", errors.Wrapf(err, "train: save checkpoint at epoch %d", epoch)
	}
	t.recorder.CheckpointSaved()
	t.logger.Info("model saved", zap.Int("checkpoint", epoch), zap.String("path", path))
	return path, nil
}
