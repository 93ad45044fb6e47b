package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claimspotter/internal/api"
	"claimspotter/internal/model"
	"claimspotter/internal/tokenizer"
)

type scoreOptions struct {
	checkpoint string
	file       string
	wholeText  bool
}

func newScoreCmd() *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score [text...]",
		Short: "Score sentences with a trained checkpoint and print JSON results",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			return runScore(cmd, rt, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint file (latest in output_dir by default)")
	f.StringVarP(&opts.file, "file", "f", "", "read text from a file, - for stdin")
	f.BoolVar(&opts.wholeText, "whole", false, "score the input as one sentence instead of segmenting it")
	return cmd
}

func runScore(cmd *cobra.Command, rt *runtime, opts *scoreOptions, args []string) error {
	cfg, logger := rt.cfg, rt.logger

	text, err := scoreInput(cmd, opts, args)
	if err != nil {
		return err
	}

	tok, err := tokenizer.New(cfg.Data, cfg.Model.MaxLen)
	if err != nil {
		return err
	}
	m, err := model.New(cfg.Model, tok.VocabSize(), cfg.Data.NumClasses, cfg.Data.RandomState, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	path := opts.checkpoint
	if path == "" {
		if path, err = model.LatestCheckpoint(cfg.Train.OutputDir); err != nil {
			return err
		}
	}
	if err := m.Restore(path); err != nil {
		return err
	}
	logger.Debug("restored checkpoint", zap.String("path", path))

	apiOpts := []api.Option{api.WithLogger(logger)}
	if opts.wholeText {
		apiOpts = append(apiOpts, api.WithSegmenter(api.LineSegmenter{}))
	}
	spotter, err := api.New(tok, m, cfg.Train.BatchSize, apiOpts...)
	if err != nil {
		return err
	}
	results, err := spotter.ScoreText(text)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func scoreInput(cmd *cobra.Command, opts *scoreOptions, args []string) (string, error) {
	switch {
	case opts.file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), errors.Wrap(err, "cli: read stdin")
	case opts.file != "":
		b, err := os.ReadFile(opts.file)
		return string(b), errors.Wrapf(err, "cli: read %s", opts.file)
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", errors.New("cli: nothing to score, pass text or --file")
	}
}
