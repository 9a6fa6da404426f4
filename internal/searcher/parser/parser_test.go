package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
)

func TestParse(t *testing.T) {
	plain := tokenizer.New(tokenizer.Options{})
	tests := []struct {
		name     string
		query    string
		terms    []string
		phrases  [][]string
		excludes []string
		typ      QueryType
	}{
		{"empty", "   ", []string{}, nil, []string{}, QueryAND},
		{"and", "one two", []string{"one", "two"}, nil, []string{}, QueryAND},
		{"or", "one OR two", []string{"one", "two"}, nil, []string{}, QueryOR},
		{"not", "one NOT two three", []string{"one", "three"}, nil, []string{"two"}, QueryAND},
		{"phrase", `one "two three"`, []string{"one"}, [][]string{{"two", "three"}}, []string{}, QueryAND},
		{"single word phrase", `"Two"`, []string{"two"}, nil, []string{}, QueryAND},
		{"compound word", "foo-bar baz", []string{"foo", "bar", "baz"}, nil, []string{}, QueryAND},
		{"excluded compound word", "one NOT e-mail", []string{"one"}, nil, []string{"e", "mail"}, QueryAND},
		{"unterminated phrase", `one "two three`, []string{"one"}, [][]string{{"two", "three"}}, []string{}, QueryAND},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query, plain)
			assert.Equal(t, tt.terms, plan.Terms)
			assert.Equal(t, tt.phrases, plan.Phrases)
			assert.Equal(t, tt.excludes, plan.ExcludeTerms)
			assert.Equal(t, tt.typ, plan.Type)
			assert.Equal(t, tt.query, plan.RawQuery)
		})
	}
}

func TestParseUsesPipeline(t *testing.T) {
	plan := Parse("the Searching OF indexes", tokenizer.New(tokenizer.DefaultOptions()))
	assert.Equal(t, []string{"search", "index"}, plan.Terms)
	assert.False(t, plan.Empty())
	assert.True(t, Parse("the of", tokenizer.New(tokenizer.DefaultOptions())).Empty())
}

func TestNormalized(t *testing.T) {
	plain := tokenizer.New(tokenizer.Options{})
	a := Parse(`ONE or "two three" not four`, plain)
	b := Parse(`one OR "Two Three" NOT Four`, plain)
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.Equal(t, `OR|one|"two three"|NOT:four`, a.Normalized())
}
