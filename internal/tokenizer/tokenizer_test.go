package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimspotter/internal/config"
)

func TestHashing_Encode(t *testing.T) {
	h, err := NewHashing(1000, 16, true)
	require.NoError(t, err)

	ids := h.Encode("The economy grew 3%.")
	require.Len(t, ids, 8) // cls the economy grew 3 % . sep
	assert.Equal(t, hashCLS, ids[0])
	assert.Equal(t, hashSEP, ids[len(ids)-1])
	for _, id := range ids[1 : len(ids)-1] {
		assert.GreaterOrEqual(t, id, hashReserved)
		assert.Less(t, id, 1000)
	}

	// lowercasing makes case irrelevant
	assert.Equal(t, ids, h.Encode("THE ECONOMY GREW 3%."))
}

func TestHashing_Deterministic(t *testing.T) {
	a, err := NewHashing(1<<15, 32, false)
	require.NoError(t, err)
	b, err := NewHashing(1<<15, 32, false)
	require.NoError(t, err)

	s := "Unemployment fell to four percent last year"
	assert.Equal(t, a.Encode(s), b.Encode(s))
	assert.NotEqual(t, a.Encode("taxes"), a.Encode("Taxes"))
}

func TestHashing_TruncatesHead(t *testing.T) {
	h, err := NewHashing(500, 5, false)
	require.NoError(t, err)

	long := h.Encode("one two three four five six")
	short := h.Encode("one two three")
	assert.Len(t, long, 5)
	assert.Equal(t, short, long)
}

func TestHashing_Empty(t *testing.T) {
	h, err := NewHashing(100, 8, false)
	require.NoError(t, err)
	assert.Equal(t, []int{hashCLS, hashSEP}, h.Encode("   "))
}

func TestNewHashing_Invalid(t *testing.T) {
	_, err := NewHashing(3, 10, false)
	assert.Error(t, err)
	_, err = NewHashing(100, 1, false)
	assert.Error(t, err)
}

func TestNew_Factory(t *testing.T) {
	cfg := config.Default().Data
	cfg.TokenizerType = config.TokenizerHashing
	cfg.HashingBuckets = 64

	tok, err := New(cfg, 10)
	require.NoError(t, err)
	assert.Equal(t, config.TokenizerHashing, tok.Scheme())
	assert.Equal(t, 64, tok.VocabSize())

	cfg.TokenizerType = "word2vec"
	_, err = New(cfg, 10)
	assert.Error(t, err)
}

func TestNewBERT_Errors(t *testing.T) {
	_, err := NewBERT("", 10, true)
	assert.Error(t, err)

	_, err = NewBERT(filepath.Join(t.TempDir(), "missing.txt"), 10, true)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{"[PAD]", "hello"}, "\n")), 0o644))
	_, err = NewBERT(path, 10, true)
	assert.Error(t, err)
}

func TestNewXLNet_Errors(t *testing.T) {
	_, err := NewXLNet("", 10)
	assert.Error(t, err)

	_, err = NewXLNet(t.TempDir(), 10)
	assert.Error(t, err)
}

const xlnetModelDir = "testdata/xlnet"

func TestXLNet_Encode(t *testing.T) {
	x, err := NewXLNet(xlnetModelDir, 8)
	require.NoError(t, err)
	assert.Equal(t, config.TokenizerXLNet, x.Scheme())
	assert.GreaterOrEqual(t, x.VocabSize(), 32001)

	ids := x.Encode("this")
	require.Len(t, ids, 3)
	assert.Equal(t, []int{x.sep, x.cls}, ids[1:])
	assert.NotEqual(t, x.sep, x.cls)
	assert.Equal(t, ids, x.Encode("this"))
	assert.NotEqual(t, ids, x.Encode("hello"))

	long := x.Encode("This is a sample sentence to be tokenized by the xlnet model")
	require.Len(t, long, 8)
	assert.Equal(t, []int{x.sep, x.cls}, long[6:])

	for _, text := range []string{"this", "hello world", "Wondering how this will get tokenized 🤔 ?"} {
		for _, id := range x.Encode(text) {
			assert.Greater(t, id, 0, "id 0 is padding")
			assert.Less(t, id, x.VocabSize())
		}
	}
}

func TestXLNet_UnknownPiece(t *testing.T) {
	x, err := NewXLNet(xlnetModelDir, 16)
	require.NoError(t, err)
	assert.Contains(t, x.Encode("tokénized 🤔"), 1)
}

func TestNew_FactoryXLNet(t *testing.T) {
	cfg := config.Default().Data
	cfg.TokenizerType = config.TokenizerXLNet
	cfg.XLNetModelDir = xlnetModelDir

	tok, err := New(cfg, 10)
	require.NoError(t, err)
	assert.Equal(t, config.TokenizerXLNet, tok.Scheme())
}
