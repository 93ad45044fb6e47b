// Package config holds the immutable run configuration for claimspotter.
//
// A Config is built once by Load (or Default in tests) and passed by value to
// every component constructor.
package config

import (
	"github.com/pkg/errors"

	"claimspotter/internal/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Tokenizer schemes understood by the data loader.
const (
	TokenizerBERT    = "bert"
	TokenizerXLNet   = "xlnet"
	TokenizerHashing = "hashing"
)

// Config is the root configuration object.
type Config struct {
	Data  DataConfig        `mapstructure:"data"`
	Model ModelConfig       `mapstructure:"model"`
	Train TrainConfig       `mapstructure:"train"`
	Log   logging.LogConfig `mapstructure:"log"`
}

// DataConfig controls ingestion, tokenization and resampling.
type DataConfig struct {
	RawDataPath       string `mapstructure:"raw_data_path"`
	RawEvalPath       string `mapstructure:"raw_eval_path"`
	ProcessedDataPath string `mapstructure:"processed_data_path"`

	UseCLEFData       bool   `mapstructure:"use_clef_data"`
	RawCLEFTrainPath  string `mapstructure:"raw_clef_train_path"`
	RawCLEFTestPath   string `mapstructure:"raw_clef_test_path"`
	ProcessedCLEFPath string `mapstructure:"processed_clef_path"`

	// RefreshData forces re-tokenization even when a cache file exists.
	RefreshData bool `mapstructure:"refresh_data"`

	// TokenizerType is one of bert, xlnet or hashing.
	TokenizerType  string `mapstructure:"tokenizer_type"`
	BertVocabPath  string `mapstructure:"bert_vocab_path"`
	XLNetModelDir  string `mapstructure:"xlnet_model_dir"`
	DoLowerCase    bool   `mapstructure:"do_lower_case"`
	HashingBuckets int    `mapstructure:"hashing_buckets"`

	NumClasses       int   `mapstructure:"num_classes"`
	AltTwoClassCombo bool  `mapstructure:"alt_two_class_combo"`
	Oversample       bool  `mapstructure:"oversample"`
	RandomState      int64 `mapstructure:"random_state"`

	// TestExamples caps the evaluation set; zero keeps every example.
	TestExamples int `mapstructure:"test_examples"`
}

// ModelConfig describes the recurrent classifier and its objective.
type ModelConfig struct {
	MaxLen      int  `mapstructure:"max_len"`
	PostPadding bool `mapstructure:"post_padding"`

	// VocabSize overrides the tokenizer vocabulary size when non-zero.
	VocabSize       int    `mapstructure:"vocab_size"`
	EmbeddingDim    int    `mapstructure:"embedding_dim"`
	EmbeddingPath   string `mapstructure:"embedding_path"`
	TrainEmbeddings bool   `mapstructure:"train_embeddings"`

	RNNCellSize int  `mapstructure:"rnn_cell_size"`
	BidirLSTM   bool `mapstructure:"bidir_lstm"`

	KeepProbEmb  float64 `mapstructure:"keep_prob_emb"`
	KeepProbLSTM float64 `mapstructure:"keep_prob_lstm"`

	L2RegCoeff        float64 `mapstructure:"l2_reg_coeff"`
	WeightClassesLoss bool    `mapstructure:"weight_classes_loss"`

	AdvTrain          bool    `mapstructure:"adv_train"`
	AdvCoeff          float64 `mapstructure:"adv_coeff"`
	PerturbNormLength float64 `mapstructure:"perturb_norm_length"`

	LearningRate float64 `mapstructure:"learning_rate"`
	// Adam selects the Adam optimizer; RMSProp is used otherwise.
	Adam bool `mapstructure:"adam"`
}

// TrainConfig controls the epoch loop.
type TrainConfig struct {
	MaxSteps          int    `mapstructure:"max_steps"`
	BatchSize         int    `mapstructure:"batch_size"`
	StatPrintInterval int    `mapstructure:"stat_print_interval"`
	ModelSaveInterval int    `mapstructure:"model_save_interval"`
	OutputDir         string `mapstructure:"output_dir"`
}

// Validate checks cross-field constraints. Every failure wraps ErrInvalid.
func (c Config) Validate() error {
	if c.Data.NumClasses != 2 && c.Data.NumClasses != 3 {
		return errors.Wrapf(ErrInvalid, "num_classes must be 2 or 3, got %d", c.Data.NumClasses)
	}
	if c.Data.UseCLEFData && c.Data.NumClasses != 2 {
		return errors.Wrap(ErrInvalid, "clef data is binary, num_classes must be 2")
	}
	switch c.Data.TokenizerType {
	case TokenizerBERT, TokenizerXLNet:
	case TokenizerHashing:
		if c.Data.HashingBuckets <= 0 {
			return errors.Wrap(ErrInvalid, "hashing_buckets must be positive")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown tokenizer_type %q", c.Data.TokenizerType)
	}
	if c.Model.MaxLen < 2 {
		return errors.Wrapf(ErrInvalid, "max_len must be at least 2, got %d", c.Model.MaxLen)
	}
	if c.Model.EmbeddingDim <= 0 || c.Model.RNNCellSize <= 0 {
		return errors.Wrap(ErrInvalid, "embedding_dim and rnn_cell_size must be positive")
	}
	if c.Model.VocabSize < 0 {
		return errors.Wrap(ErrInvalid, "vocab_size must not be negative")
	}
	if !validKeepProb(c.Model.KeepProbEmb) || !validKeepProb(c.Model.KeepProbLSTM) {
		return errors.Wrap(ErrInvalid, "keep probabilities must be in (0, 1]")
	}
	if c.Model.LearningRate <= 0 {
		return errors.Wrap(ErrInvalid, "learning_rate must be positive")
	}
	if c.Model.L2RegCoeff < 0 || c.Model.AdvCoeff < 0 || c.Model.PerturbNormLength < 0 {
		return errors.Wrap(ErrInvalid, "l2_reg_coeff, adv_coeff and perturb_norm_length must not be negative")
	}
	if c.Train.BatchSize <= 0 {
		return errors.Wrapf(ErrInvalid, "batch_size must be positive, got %d", c.Train.BatchSize)
	}
	if c.Train.MaxSteps < 0 {
		return errors.Wrap(ErrInvalid, "max_steps must not be negative")
	}
	if c.Train.StatPrintInterval <= 0 || c.Train.ModelSaveInterval <= 0 {
		return errors.Wrap(ErrInvalid, "stat_print_interval and model_save_interval must be positive")
	}
	if c.Data.TestExamples < 0 {
		return errors.Wrap(ErrInvalid, "test_examples must not be negative")
	}
	return nil
}

func validKeepProb(p float64) bool { return p > 0 && p <= 1 }
