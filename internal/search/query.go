package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit caps the number of ids a search returns.
const DefaultLimit = 50

// Search returns the ids of entities whose declared fields fuzzily match
// every token of text, most relevant first and ties by ascending id.
// Text without searchable tokens yields an empty result, not an error.
func (k *KindIndex) Search(ctx context.Context, text string, limit int) ([]int64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrClosed
	}

	tokens := k.tokenize(text)
	if len(tokens) == 0 {
		return []int64{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequestOptions(k.buildQuery(tokens), limit, 0, false)
	req.SortBy([]string{"-_score", numericIDField})

	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := parseDocID(hit.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// tokenize runs text through the same analyzer the fields are indexed with.
func (k *KindIndex) tokenize(text string) []string {
	analyzer := k.index.Mapping().AnalyzerNamed(standard.Name)
	if analyzer == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range analyzer.Analyze([]byte(text)) {
		term := string(tok.Term)
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		tokens = append(tokens, term)
	}
	return tokens
}

// buildQuery requires every token to match at least one declared field.
//
// Per token and field the match strategies are:
//   - exact term (highest boost)
//   - fuzzy term with edit distance 1 for typo tolerance
//   - substring wildcard for "contains" matches
func (k *KindIndex) buildQuery(tokens []string) query.Query {
	perToken := make([]query.Query, 0, len(tokens))

	for _, tok := range tokens {
		var alternatives []query.Query
		for _, field := range k.kind.Fields() {
			exact := bleve.NewTermQuery(tok)
			exact.SetField(field)
			exact.SetBoost(3.0)
			alternatives = append(alternatives, exact)

			fuzzy := bleve.NewFuzzyQuery(tok)
			fuzzy.SetFuzziness(1)
			fuzzy.SetField(field)
			fuzzy.SetBoost(1.0)
			alternatives = append(alternatives, fuzzy)

			contains := bleve.NewWildcardQuery("*" + tok + "*")
			contains.SetField(field)
			contains.SetBoost(0.5)
			alternatives = append(alternatives, contains)
		}
		perToken = append(perToken, bleve.NewDisjunctionQuery(alternatives...))
	}

	if len(perToken) == 1 {
		return perToken[0]
	}
	return bleve.NewConjunctionQuery(perToken...)
}
