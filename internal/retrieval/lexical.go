package retrieval

import (
	"context"
	"strings"

	"github.com/forgetful-ai/forgetful/internal/model"
)

// KeywordTagScorer implements LexicalScorer via keyword/tag overlap
// against the query. Tokenization uses a lowercase/alphanumeric split.
type KeywordTagScorer struct{}

func (KeywordTagScorer) Score(ctx context.Context, query string, candidates []model.Memory) map[int64]float64 {
	queryTokens := tokenSet(query)
	scores := make(map[int64]float64, len(candidates))
	if len(queryTokens) == 0 {
		return scores
	}

	for _, m := range candidates {
		fieldTokens := make(map[string]bool)
		for _, kw := range m.Keywords {
			for t := range tokenSet(kw) {
				fieldTokens[t] = true
			}
		}
		for _, tag := range m.Tags {
			for t := range tokenSet(tag) {
				fieldTokens[t] = true
			}
		}

		var matches int
		for t := range queryTokens {
			if fieldTokens[t] {
				matches++
			}
		}
		scores[m.ID] = float64(matches) / float64(len(queryTokens))
	}
	return scores
}

func tokenSet(text string) map[string]bool {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if len(t) > 1 {
			set[t] = true
		}
	}
	return set
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

var _ LexicalScorer = KeywordTagScorer{}
