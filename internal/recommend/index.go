// Package recommend serves product recommendations by TF-IDF cosine similarity.
package recommend

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
)

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 3

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Index is an immutable TF-IDF vector space over a product catalog.
// It is safe for concurrent use.
type Index struct {
	products   []domain.Product
	vocabulary map[string]int
	idf        []float64
	vectors    []sparseVector
}

type sparseVector map[int]float64

// Match is a product together with its similarity to the query.
type Match struct {
	Product domain.Product
	Score   float64
}

// NewIndex builds the vector space from the products' descriptions.
func NewIndex(products []domain.Product) (*Index, error) {
	if len(products) == 0 {
		return nil, errors.New("empty catalog")
	}

	df := make(map[string]int)
	docs := make([][]string, len(products))
	for i, p := range products {
		docs[i] = tokenize(p.Description)
		seen := make(map[string]struct{})
		for _, tok := range docs[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	idx := &Index{
		products:   products,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
		vectors:    make([]sparseVector, len(products)),
	}
	n := float64(len(products))
	for i, term := range terms {
		idx.vocabulary[term] = i
		// Smoothed IDF
		idx.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	for i, tokens := range docs {
		idx.vectors[i] = idx.vectorize(tokens)
	}
	return idx, nil
}

// Len returns the number of indexed products.
func (x *Index) Len() int { return len(x.products) }

// Query returns up to topK products by descending cosine similarity.
// Ties keep catalog order. A query sharing no terms with the catalog
// returns nothing.
func (x *Index) Query(text string, topK int) []Match {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q := x.vectorize(tokenize(text))
	if len(q) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(x.products))
	for i, v := range x.vectors {
		s := dot(q, v)
		if s <= 0 {
			continue
		}
		matches = append(matches, Match{Product: x.products[i], Score: s})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// vectorize weights raw term counts by IDF and L2-normalises the result.
// Terms outside the vocabulary are ignored.
func (x *Index) vectorize(tokens []string) sparseVector {
	vec := make(sparseVector)
	for _, tok := range tokens {
		if i, ok := x.vocabulary[tok]; ok {
			vec[i]++
		}
	}
	norm := 0.0
	for i, count := range vec {
		w := count * x.idf[i]
		vec[i] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopWords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func dot(a, b sparseVector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	sum := 0.0
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}
