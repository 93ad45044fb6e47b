package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. CLAIMSPOTTER_TRAIN_BATCH_SIZE.
const envPrefix = "CLAIMSPOTTER"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads an optional .env file, the YAML file at path (skipped when path is
// empty), CLAIMSPOTTER_* environment overrides and defaults, then validates.
func Load(path string) (Config, error) {
	// Best-effort: a missing .env is the common case.
	_ = godotenv.Load()

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: failed to read %q", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: failed to unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data.raw_data_path", d.Data.RawDataPath)
	v.SetDefault("data.raw_eval_path", d.Data.RawEvalPath)
	v.SetDefault("data.processed_data_path", d.Data.ProcessedDataPath)
	v.SetDefault("data.use_clef_data", d.Data.UseCLEFData)
	v.SetDefault("data.raw_clef_train_path", d.Data.RawCLEFTrainPath)
	v.SetDefault("data.raw_clef_test_path", d.Data.RawCLEFTestPath)
	v.SetDefault("data.processed_clef_path", d.Data.ProcessedCLEFPath)
	v.SetDefault("data.refresh_data", d.Data.RefreshData)
	v.SetDefault("data.tokenizer_type", d.Data.TokenizerType)
	v.SetDefault("data.bert_vocab_path", d.Data.BertVocabPath)
	v.SetDefault("data.xlnet_model_dir", d.Data.XLNetModelDir)
	v.SetDefault("data.do_lower_case", d.Data.DoLowerCase)
	v.SetDefault("data.hashing_buckets", d.Data.HashingBuckets)
	v.SetDefault("data.num_classes", d.Data.NumClasses)
	v.SetDefault("data.alt_two_class_combo", d.Data.AltTwoClassCombo)
	v.SetDefault("data.oversample", d.Data.Oversample)
	v.SetDefault("data.random_state", d.Data.RandomState)
	v.SetDefault("data.test_examples", d.Data.TestExamples)

	v.SetDefault("model.max_len", d.Model.MaxLen)
	v.SetDefault("model.post_padding", d.Model.PostPadding)
	v.SetDefault("model.vocab_size", d.Model.VocabSize)
	v.SetDefault("model.embedding_dim", d.Model.EmbeddingDim)
	v.SetDefault("model.embedding_path", d.Model.EmbeddingPath)
	v.SetDefault("model.train_embeddings", d.Model.TrainEmbeddings)
	v.SetDefault("model.rnn_cell_size", d.Model.RNNCellSize)
	v.SetDefault("model.bidir_lstm", d.Model.BidirLSTM)
	v.SetDefault("model.keep_prob_emb", d.Model.KeepProbEmb)
	v.SetDefault("model.keep_prob_lstm", d.Model.KeepProbLSTM)
	v.SetDefault("model.l2_reg_coeff", d.Model.L2RegCoeff)
	v.SetDefault("model.weight_classes_loss", d.Model.WeightClassesLoss)
	v.SetDefault("model.adv_train", d.Model.AdvTrain)
	v.SetDefault("model.adv_coeff", d.Model.AdvCoeff)
	v.SetDefault("model.perturb_norm_length", d.Model.PerturbNormLength)
	v.SetDefault("model.learning_rate", d.Model.LearningRate)
	v.SetDefault("model.adam", d.Model.Adam)

	v.SetDefault("train.max_steps", d.Train.MaxSteps)
	v.SetDefault("train.batch_size", d.Train.BatchSize)
	v.SetDefault("train.stat_print_interval", d.Train.StatPrintInterval)
	v.SetDefault("train.model_save_interval", d.Train.ModelSaveInterval)
	v.SetDefault("train.output_dir", d.Train.OutputDir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)
}
