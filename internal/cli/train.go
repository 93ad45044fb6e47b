package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimspotter/internal/loader"
	"claimspotter/internal/metrics"
	"claimspotter/internal/model"
	"claimspotter/internal/tokenizer"
	"claimspotter/internal/train"
)

const metricsFile = "metrics.prom"

func newTrainCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Load the corpus, train the classifier and write checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			if refresh {
				rt.cfg.Data.RefreshData = true
			}
			return runTrain(cmd.Context(), rt)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh-data", false, "re-tokenize raw data even when a cache exists")
	return cmd
}

func runTrain(ctx context.Context, rt *runtime) error {
	cfg, logger := rt.cfg, rt.logger

	tok, err := tokenizer.New(cfg.Data, cfg.Model.MaxLen)
	if err != nil {
		return err
	}
	l, err := loader.New(cfg, tok, logger)
	if err != nil {
		return err
	}
	if err := l.Load(ctx, nil); err != nil {
		return err
	}
	trainSet, err := l.TrainingData()
	if err != nil {
		return err
	}
	evalSet, err := l.TestingData()
	if err != nil {
		return err
	}

	m, err := model.New(cfg.Model, tok.VocabSize(), cfg.Data.NumClasses, cfg.Data.RandomState, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewTraining(reg)
	if err != nil {
		return err
	}
	tr, err := train.New(cfg, m, l.ClassWeights(), rec, logger)
	if err != nil {
		return err
	}
	sum, err := tr.Run(ctx, trainSet, evalSet)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Train.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "cli: create output dir")
	}
	path := filepath.Join(cfg.Train.OutputDir, metricsFile)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrap(err, "cli: write metrics")
	}
	logger.Info("training finished",
		zap.Int("epochs", len(sum.Epochs)),
		zap.Int("validation_failures", sum.ValidationFailures),
		zap.Strings("checkpoints", sum.Checkpoints),
		zap.String("metrics", path),
	)
	return nil
}
