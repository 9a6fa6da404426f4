// Package tokenizer provides the term pipeline used to build shards and to
// normalise query terms. It lower-cases input, splits on non-alphanumeric
// boundaries and, depending on Options, drops short words and stop-words and
// applies the Snowball English stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Options selects the stages of the term pipeline.
type Options struct {
	StopWords bool `yaml:"stopWords"`
	Stem      bool `yaml:"stem"`
	MinLength int  `yaml:"minLength"`
}

// DefaultOptions is the pipeline used by the platform unless configured
// otherwise.
func DefaultOptions() Options {
	return Options{StopWords: true, Stem: true, MinLength: 2}
}

// Tokenizer applies a fixed term pipeline.
type Tokenizer struct {
	opts Options
}

// New returns a Tokenizer for opts. The zero Options only lower-cases and
// splits.
func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

// Options returns the pipeline configuration.
func (t *Tokenizer) Options() Options {
	return t.opts
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed.
func Tokenize(text string) []Token {
	return defaultTokenizer.Tokenize(text)
}

var defaultTokenizer = New(DefaultOptions())

// Tokenize breaks text into Tokens. Positions count kept tokens only.
func (t *Tokenizer) Tokenize(text string) []Token {
	return t.TokenizeFrom(text, 0)
}

// TokenizeFrom is Tokenize with positions starting at start, so several
// fields of one document share a position space.
func (t *Tokenizer) TokenizeFrom(text string, start int) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := start
	for _, word := range words {
		if len(word) < t.opts.MinLength {
			continue
		}
		if t.opts.StopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if t.opts.Stem {
			word = english.Stem(word, false)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}
