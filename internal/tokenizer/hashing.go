package tokenizer

import (
	"crypto/md5"
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"claimspotter/internal/config"
)

// Reserved ids of the hashing scheme.
const (
	hashPad = 0
	hashCLS = 1
	hashSEP = 2

	hashReserved = 3
)

// Hashing maps words to ids by hashing them into a fixed number of buckets.
// It needs no vocabulary files, which makes it the scheme of choice for tests
// and offline runs. Encodings are deterministic across processes.
type Hashing struct {
	buckets   int
	maxLen    int
	lowerCase bool
}

// NewHashing creates a hashing tokenizer with the given bucket count.
func NewHashing(buckets, maxLen int, lowerCase bool) (*Hashing, error) {
	if buckets <= hashReserved {
		return nil, errors.Errorf("tokenizer: hashing needs more than %d buckets, got %d", hashReserved, buckets)
	}
	if maxLen < 2 {
		return nil, errors.Errorf("tokenizer: max length must be at least 2, got %d", maxLen)
	}
	return &Hashing{buckets: buckets, maxLen: maxLen, lowerCase: lowerCase}, nil
}

// Encode returns [CLS] words... [SEP], keeping the head of long sentences.
func (h *Hashing) Encode(text string) []int {
	if h.lowerCase {
		text = strings.ToLower(text)
	}
	words := headTruncate(splitWords(text), h.maxLen-2)

	ids := make([]int, 0, len(words)+2)
	ids = append(ids, hashCLS)
	for _, w := range words {
		ids = append(ids, h.id(w))
	}
	return append(ids, hashSEP)
}

func (h *Hashing) id(word string) int {
	sum := md5.Sum([]byte(word))
	v := binary.BigEndian.Uint64(sum[:8])
	return hashReserved + int(v%uint64(h.buckets-hashReserved))
}

func (h *Hashing) VocabSize() int { return h.buckets }

func (h *Hashing) Scheme() string { return config.TokenizerHashing }

// splitWords splits on whitespace and isolates punctuation as its own token.
func splitWords(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
