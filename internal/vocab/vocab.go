// Package vocab computes word statistics over a labeled corpus and carries the
// vocabulary description persisted next to processed datasets.
package vocab

import (
	"sort"
	"strings"
	"unicode"
)

// LabeledText is a single raw (text, label) pair.
type LabeledText struct {
	Text  string
	Label int
}

// WordCount is a word and the number of times it occurs.
type WordCount struct {
	Word  string
	Count int
}

// Vocabulary describes the token space the model embeds.
type Vocabulary struct {
	// Size is the number of token ids the tokenizer can emit.
	Size int
	// Scheme names the tokenizer that produced the ids.
	Scheme string
	// Words holds corpus word frequencies, most frequent first.
	Words []WordCount
}

// Frequencies splits every text on single spaces, strips non alphanumeric
// runes from each word, drops empty words and returns the counts sorted by
// descending frequency. Ties are broken alphabetically so the result is stable.
func Frequencies(data []LabeledText) []WordCount {
	counts := make(map[string]int)
	for _, pair := range data {
		for _, word := range strings.Split(pair.Text, " ") {
			word = strings.Map(func(r rune) rune {
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					return r
				}
				return -1
			}, word)
			if word == "" {
				continue
			}
			counts[word]++
		}
	}

	out := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		out = append(out, WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}
