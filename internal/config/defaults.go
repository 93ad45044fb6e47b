package config

import "claimspotter/internal/logging"

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() Config {
	return Config{
		Data: DataConfig{
			RawDataPath:       "data/disjoint_2000.json",
			RawEvalPath:       "data/disjoint_2000_eval.json",
			ProcessedDataPath: "data/processed.gob",
			RawCLEFTrainPath:  "data/clef/train.csv",
			RawCLEFTestPath:   "data/clef/test.csv",
			ProcessedCLEFPath: "data/clef/processed.gob",
			TokenizerType:     TokenizerBERT,
			BertVocabPath:     "models/bert/vocab.txt",
			XLNetModelDir:     "models/xlnet",
			DoLowerCase:       true,
			HashingBuckets:    1 << 15,
			NumClasses:        2,
			RandomState:       59,
		},
		Model: ModelConfig{
			MaxLen:            200,
			PostPadding:       true,
			EmbeddingDim:      200,
			TrainEmbeddings:   true,
			RNNCellSize:       128,
			BidirLSTM:         true,
			KeepProbEmb:       0.75,
			KeepProbLSTM:      0.65,
			WeightClassesLoss: true,
			AdvTrain:          false,
			AdvCoeff:          1.0,
			PerturbNormLength: 5.0,
			LearningRate:      0.001,
			Adam:              true,
		},
		Train: TrainConfig{
			MaxSteps:          20,
			BatchSize:         32,
			StatPrintInterval: 1,
			ModelSaveInterval: 5,
			OutputDir:         "output",
		},
		Log: logging.LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
