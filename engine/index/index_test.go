package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_EmptyCorpus(t *testing.T) {
	snap, err := Build(nil, Options{})
	require.ErrorIs(t, err, ErrEmptyCorpus)
	assert.Nil(t, snap)

	snap, err = Build([]string{}, Options{})
	require.ErrorIs(t, err, ErrEmptyCorpus)
	assert.Nil(t, snap)
}

func TestBuild_NoIndexableTerms(t *testing.T) {
	snap, err := Build([]string{"", "   "}, Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyCorpus)
	assert.Nil(t, snap)
}

func TestSnapshot_SelfSimilarityIsMaximal(t *testing.T) {
	corpus := []string{
		"hello hi greetings",
		"bye goodbye farewell",
		"fee structure pricing cost",
		"opening hours schedule time",
		"transfer money abroad bank",
	}
	snap, err := Build(corpus, Options{})
	require.NoError(t, err)
	require.Equal(t, len(corpus), snap.Docs())

	for i, text := range corpus {
		scores := snap.Score(text)
		require.Len(t, scores, len(corpus))

		best, bestScore := 0, scores[0]
		for j, s := range scores {
			if s > bestScore {
				best, bestScore = j, s
			}
		}
		assert.Equal(t, i, best, "document %d should score highest against itself", i)
		assert.InDelta(t, 1.0, bestScore, 1e-9)
	}
}

func TestSnapshot_ScoresBounded(t *testing.T) {
	snap, err := Build([]string{"alpha beta gamma", "beta gamma delta", "delta epsilon"}, Options{})
	require.NoError(t, err)

	for _, query := range []string{"alpha", "beta gamma", "alpha beta gamma delta epsilon", "zeta"} {
		for i, s := range snap.Score(query) {
			assert.GreaterOrEqual(t, s, 0.0, "query %q doc %d", query, i)
			assert.LessOrEqual(t, s, 1.0, "query %q doc %d", query, i)
		}
	}
}

func TestSnapshot_UnseenTermsDropped(t *testing.T) {
	snap, err := Build([]string{"hello hi", "bye"}, Options{})
	require.NoError(t, err)

	scores := snap.Score("xyzzy quux")
	for i, s := range scores {
		assert.Zero(t, s, "doc %d", i)
	}

	// A query mixing known and unknown terms scores as if the unknown terms
	// were absent.
	mixed := snap.Score("hello xyzzy")
	pure := snap.Score("hello")
	assert.Equal(t, pure, mixed)
}

func TestSnapshot_NgramsCaptureWordOrder(t *testing.T) {
	corpus := []string{"fee structure overview", "structure integrity report"}
	snap, err := Build(corpus, Options{NgramMax: 2})
	require.NoError(t, err)

	inOrder := snap.Score("fee structure")[0]
	reversed := snap.Score("structure fee")[0]
	assert.Greater(t, inOrder, reversed,
		"the in-order phrase should benefit from the bigram term")
}

func TestBuild_Deterministic(t *testing.T) {
	corpus := []string{"hello hi", "bye goodbye", "fee structure"}
	first, err := Build(corpus, Options{NgramMax: 2})
	require.NoError(t, err)
	second, err := Build(corpus, Options{NgramMax: 2})
	require.NoError(t, err)

	for _, query := range []string{"hello", "fee structure", "goodbye bye", "nothing known"} {
		assert.Equal(t, first.Score(query), second.Score(query), "query %q", query)
	}
}

func TestExtractTerms(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		ngramMax int
		want     []string
	}{
		{"empty", "", 1, nil},
		{"unigrams", "fee structure", 1, []string{"fee", "structure"}},
		{"bigrams", "fee structure overview", 2, []string{
			"fee", "structure", "overview",
			"fee structure", "structure overview",
		}},
		{"trigram window", "a b c", 3, []string{
			"a", "b", "c", "a b", "b c", "a b c",
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractTerms(tc.text, tc.ngramMax))
		})
	}
}
