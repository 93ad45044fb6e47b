// Package tokenizer turns raw sentences into token id sequences for the
// classifier's embedding table.
package tokenizer

import (
	"github.com/pkg/errors"

	"claimspotter/internal/config"
)

// Tokenizer encodes a sentence into vocabulary ids, including any special
// tokens its scheme adds. Id 0 is never emitted: batches pad with it.
type Tokenizer interface {
	Encode(text string) []int
	VocabSize() int
	Scheme() string
}

// New builds the tokenizer selected by cfg.TokenizerType. maxLen bounds the
// encoded length, special tokens included.
func New(cfg config.DataConfig, maxLen int) (Tokenizer, error) {
	switch cfg.TokenizerType {
	case config.TokenizerBERT:
		return NewBERT(cfg.BertVocabPath, maxLen, cfg.DoLowerCase)
	case config.TokenizerXLNet:
		return NewXLNet(cfg.XLNetModelDir, maxLen)
	case config.TokenizerHashing:
		return NewHashing(cfg.HashingBuckets, maxLen, cfg.DoLowerCase)
	default:
		return nil, errors.Errorf("tokenizer: unknown scheme %q", cfg.TokenizerType)
	}
}

// headTruncate keeps the first n tokens.
func headTruncate(tokens []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(tokens) > n {
		return tokens[:n]
	}
	return tokens
}
