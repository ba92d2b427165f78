// Package index implements an immutable TF-IDF vector index with cosine
// similarity scoring. A Snapshot is built once from a corpus of normalized
// pattern texts and is never mutated; any corpus change requires a full
// rebuild, which is cheap because the corpus is bounded by the number of
// curated entries.
package index

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyCorpus is returned when a snapshot is requested for zero
// documents. A term-weighting model cannot be fit on an empty corpus.
var ErrEmptyCorpus = errors.New("empty corpus")

// Options controls snapshot construction.
type Options struct {
	// NgramMax extends the term space with multi-word phrases up to this
	// length, so short domain phrases ("fee structure") contribute beyond
	// unigram overlap. 1 means unigrams only; 0 is treated as 1.
	NgramMax int
}

// Snapshot is an immutable pairing of a fitted vocabulary/IDF model and one
// L2-normalized document vector per corpus entry, in corpus order.
type Snapshot struct {
	vocabulary map[string]int
	idf        []float64
	docs       [][]float64
	ngramMax   int
}

// Build fits the term-weighting model on corpus and vectorizes every entry.
// Corpus entries are expected to be normalized text (space-separated
// tokens). Entries whose text yields no terms get a zero vector and can
// never be matched.
func Build(corpus []string, opts Options) (*Snapshot, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	ngramMax := opts.NgramMax
	if ngramMax < 1 {
		ngramMax = 1
	}

	// Document frequencies over the n-gram term space.
	df := make(map[string]int)
	docTerms := make([][]string, len(corpus))
	for i, text := range corpus {
		terms := extractTerms(text, ngramMax)
		docTerms[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("no indexable terms in corpus")
	}

	s := &Snapshot{
		vocabulary: make(map[string]int, len(df)),
		idf:        make([]float64, 0, len(df)),
		ngramMax:   ngramMax,
	}
	n := float64(len(corpus))
	for _, terms := range docTerms {
		for _, term := range terms {
			if _, ok := s.vocabulary[term]; ok {
				continue
			}
			// First-seen ordering keeps the vocabulary deterministic for a
			// given corpus order, and therefore rebuilds are score-identical.
			s.vocabulary[term] = len(s.idf)
			// Smoothed IDF, never zero, so every known term contributes.
			s.idf = append(s.idf, math.Log((1+n)/(1+float64(df[term])))+1)
		}
	}

	s.docs = make([][]float64, len(corpus))
	for i, terms := range docTerms {
		s.docs[i] = s.vectorize(terms)
	}
	return s, nil
}

// Score computes the cosine similarity of query against every indexed
// document, in document order. Scores are in [0, 1]. Query terms unseen at
// build time are dropped: they contribute zero against a fixed vocabulary.
func (s *Snapshot) Score(query string) []float64 {
	scores := make([]float64, len(s.docs))
	qv := s.vectorize(extractTerms(query, s.ngramMax))
	if qv == nil {
		return scores
	}
	for i, dv := range s.docs {
		if dv == nil {
			continue
		}
		scores[i] = clamp01(dot(qv, dv))
	}
	return scores
}

// Docs returns the number of indexed documents.
func (s *Snapshot) Docs() int { return len(s.docs) }

// Terms returns the vocabulary size.
func (s *Snapshot) Terms() int { return len(s.vocabulary) }

// vectorize builds the L2-normalized TF-IDF vector for terms, or nil when no
// term is in the vocabulary.
func (s *Snapshot) vectorize(terms []string) []float64 {
	tf := make(map[int]int)
	total := 0
	for _, term := range terms {
		if idx, ok := s.vocabulary[term]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	// Accumulate in index order so identical inputs produce bit-identical
	// vectors; map iteration order would perturb the float sums.
	idxs := make([]int, 0, len(tf))
	for idx := range tf {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	vec := make([]float64, len(s.idf))
	norm := 0.0
	for _, idx := range idxs {
		w := float64(tf[idx]) / float64(total) * s.idf[idx]
		vec[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil
	}
	for _, idx := range idxs {
		vec[idx] /= norm
	}
	return vec
}

// extractTerms splits normalized text into unigrams plus n-grams up to
// ngramMax, n-grams joined with a single space.
func extractTerms(text string, ngramMax int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if ngramMax == 1 {
		return tokens
	}

	terms := make([]string, 0, len(tokens)*ngramMax)
	terms = append(terms, tokens...)
	for n := 2; n <= ngramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
