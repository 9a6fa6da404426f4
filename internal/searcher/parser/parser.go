// Package parser turns raw query strings into query plans. Words are
// normalised with the same term pipeline the shards were built with.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// QueryPlan is a flat boolean query. Phrases are quoted word sequences that
// must occur at consecutive positions.
type QueryPlan struct {
	Terms        []string
	Phrases      [][]string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

// Empty reports whether the plan has nothing to match.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0 && len(p.Phrases) == 0
}

// Normalized renders the plan in a canonical form, used as a cache key.
func (p *QueryPlan) Normalized() string {
	var b strings.Builder
	b.WriteString(p.Type.String())
	b.WriteString("|")
	b.WriteString(strings.Join(p.Terms, ","))
	for _, phrase := range p.Phrases {
		b.WriteString(`|"`)
		b.WriteString(strings.Join(phrase, " "))
		b.WriteString(`"`)
	}
	if len(p.ExcludeTerms) > 0 {
		b.WriteString("|NOT:")
		b.WriteString(strings.Join(p.ExcludeTerms, ","))
	}
	return b.String()
}

// Parse builds a plan from query. AND/OR switch the combination mode, NOT
// excludes every term of the next word, and text in double quotes is a
// phrase. A quoted
// group that normalises to a single term is treated as a plain term.
func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	excludeNext := false
	for i, part := range strings.Split(query, `"`) {
		if i%2 == 1 {
			excludeNext = false
			var phrase []string
			for _, token := range tok.Tokenize(part) {
				phrase = append(phrase, token.Term)
			}
			switch len(phrase) {
			case 0:
			case 1:
				plan.Terms = append(plan.Terms, phrase[0])
			default:
				plan.Phrases = append(plan.Phrases, phrase)
			}
			continue
		}
		for _, word := range strings.Fields(part) {
			switch strings.ToUpper(word) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			case "NOT":
				excludeNext = true
				continue
			}
			tokens := tok.Tokenize(word)
			if len(tokens) == 0 {
				continue
			}
			// A compound word such as foo-bar contributes every term.
			for _, token := range tokens {
				if excludeNext {
					plan.ExcludeTerms = append(plan.ExcludeTerms, token.Term)
				} else {
					plan.Terms = append(plan.Terms, token.Term)
				}
			}
			excludeNext = false
		}
	}
	return plan
}
