package api

import (
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/pkg/errors"
)

// Segmenter splits free text into sentences.
type Segmenter interface {
	Segment(text string) []string
}

// LineSegmenter treats the whole text, minus carriage returns, as a single
// sentence.
type LineSegmenter struct{}

// Segment implements Segmenter.
func (LineSegmenter) Segment(text string) []string {
	return []string{strings.ReplaceAll(text, "\r", "")}
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// SentenceSegmenter splits paragraphs on blank lines and each paragraph
// with the English Punkt model. Empty fragments are dropped.
type SentenceSegmenter struct {
	punkt *sentences.DefaultSentenceTokenizer
}

// NewSentenceSegmenter loads the English Punkt parameters.
func NewSentenceSegmenter() (*SentenceSegmenter, error) {
	punkt, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "api: load punkt model")
	}
	return &SentenceSegmenter{punkt: punkt}, nil
}

// Segment implements Segmenter.
func (s *SentenceSegmenter) Segment(text string) []string {
	var out []string
	for _, para := range blankLines.Split(strings.ReplaceAll(text, "\r", ""), -1) {
		for _, sent := range s.punkt.Tokenize(para) {
			if t := strings.TrimSpace(sent.Text); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
