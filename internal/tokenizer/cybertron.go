package tokenizer

import (
	"strings"

	"github.com/nlpodyssey/cybertron/pkg/tokenizers"
	"github.com/nlpodyssey/cybertron/pkg/tokenizers/sentencepiece"
	"github.com/nlpodyssey/cybertron/pkg/tokenizers/wordpiecetokenizer"
	"github.com/nlpodyssey/cybertron/pkg/vocabulary"
	"github.com/pkg/errors"

	"claimspotter/internal/config"
)

const (
	bertCLS = "[CLS]"
	bertSEP = "[SEP]"
	bertUNK = "[UNK]"

	// XLNet appends <sep> <cls> at the end of the sequence.
	xlnetUNK = "<unk>"
	xlnetSEP = "<sep>"
	xlnetCLS = "<cls>"
)

// BERT encodes text with a WordPiece vocabulary.
type BERT struct {
	vocab     *vocabulary.Vocabulary
	wp        *wordpiecetokenizer.WordPieceTokenizer
	maxLen    int
	lowerCase bool
	unkID     int
}

// NewBERT loads a BERT vocab.txt file.
func NewBERT(vocabPath string, maxLen int, lowerCase bool) (*BERT, error) {
	if vocabPath == "" {
		return nil, errors.New("tokenizer: bert vocabulary path is empty")
	}
	v, err := vocabulary.NewFromFile(vocabPath)
	if err != nil {
		return nil, errors.Wrapf(err, "tokenizer: load bert vocabulary %s", vocabPath)
	}
	for _, tok := range []string{bertCLS, bertSEP, bertUNK} {
		if _, ok := v.ID(tok); !ok {
			return nil, errors.Errorf("tokenizer: bert vocabulary lacks %s", tok)
		}
	}
	unk, _ := v.ID(bertUNK)
	return &BERT{
		vocab:     v,
		wp:        wordpiecetokenizer.New(v),
		maxLen:    maxLen,
		lowerCase: lowerCase,
		unkID:     unk,
	}, nil
}

// Encode returns [CLS] pieces... [SEP] ids.
func (b *BERT) Encode(text string) []int {
	if b.lowerCase {
		text = strings.ToLower(text)
	}
	pieces := tokenizers.GetStrings(b.wp.Tokenize(text))
	pieces = headTruncate(pieces, b.maxLen-2)

	ids := make([]int, 0, len(pieces)+2)
	ids = append(ids, b.lookup(bertCLS))
	for _, p := range pieces {
		ids = append(ids, b.lookup(p))
	}
	return append(ids, b.lookup(bertSEP))
}

func (b *BERT) lookup(tok string) int {
	if id, ok := b.vocab.ID(tok); ok {
		return id
	}
	return b.unkID
}

func (b *BERT) VocabSize() int { return b.vocab.Size() }

func (b *BERT) Scheme() string { return config.TokenizerBERT }

// XLNet encodes text with a SentencePiece model directory. Sentencepiece
// ids are shifted up by one so id 0 stays free for padding; <unk> is 1.
type XLNet struct {
	sp        *sentencepiece.Tokenizer
	maxLen    int
	sep, cls  int
	vocabSize int
}

// NewXLNet loads the sentencepiece model found in dir.
func NewXLNet(dir string, maxLen int) (*XLNet, error) {
	if dir == "" {
		return nil, errors.New("tokenizer: xlnet model directory is empty")
	}
	sp, err := sentencepiece.NewFromModelFolder(dir, false)
	if err != nil {
		return nil, errors.Wrapf(err, "tokenizer: load sentencepiece model from %s", dir)
	}
	size := pieceCount(sp)
	special := sp.TokensToIDs([]string{xlnetUNK, xlnetSEP, xlnetCLS})
	unk, sep, cls := special[0], special[1], special[2]
	if sep == unk || cls == unk {
		return nil, errors.Errorf("tokenizer: sentencepiece model in %s lacks %s or %s", dir, xlnetSEP, xlnetCLS)
	}
	return &XLNet{sp: sp, maxLen: maxLen, sep: sep + 1, cls: cls + 1, vocabSize: size + 1}, nil
}

// pieceCount returns the number of ids the model maps back to pieces. Ids
// are contiguous from zero and unknown ids make IDsToTokens panic.
func pieceCount(sp *sentencepiece.Tokenizer) int {
	known := func(id int) (ok bool) {
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		sp.IDsToTokens([]int{id})
		return true
	}
	hi := 1
	for known(hi) {
		hi *= 2
	}
	lo := hi / 2
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if known(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// Encode returns pieces... <sep> <cls> ids.
func (x *XLNet) Encode(text string) []int {
	pieces := headTruncate(x.sp.Tokenize(text), x.maxLen-2)
	ids := x.sp.TokensToIDs(pieces)
	for i := range ids {
		ids[i]++
	}
	return append(ids, x.sep, x.cls)
}

func (x *XLNet) VocabSize() int { return x.vocabSize }

func (x *XLNet) Scheme() string { return config.TokenizerXLNet }
