// Package normalize maps raw text to the normalized token representation
// the vector index is built over.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches letter runs, keeping intra-word apostrophes so
// contractions survive as a single token.
var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Config controls optional normalization stages.
type Config struct {
	// Lemmatize reduces tokens to a crude base form by stripping common
	// English suffixes.
	Lemmatize bool
}

// Normalizer is a deterministic, pure text preprocessor. The zero value is
// not usable; construct with New.
type Normalizer struct {
	cfg       Config
	stopwords map[string]struct{}
}

func New(cfg Config) *Normalizer {
	return &Normalizer{
		cfg:       cfg,
		stopwords: defaultStopwords(),
	}
}

// Normalize lowercases, folds diacritics, extracts letter tokens, drops
// stopwords and short tokens, and optionally lemmatizes. It returns an empty
// string when no content tokens survive; callers treat that as unmatchable,
// never as an error.
func (n *Normalizer) Normalize(text string) string {
	tokens := n.Tokens(text)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " ")
}

// Tokens returns the normalized token sequence for text.
func (n *Normalizer) Tokens(text string) []string {
	lower := strings.ToLower(foldAccents(text))
	raw := tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, isStop := n.stopwords[tok]; isStop {
			continue
		}
		if n.cfg.Lemmatize {
			tok = lemma(tok)
		}
		out = append(out, tok)
	}
	return out
}

// foldAccents strips combining diacritical marks ("café" -> "cafe"). The
// transformer chain carries state, so a fresh one is built per call to keep
// Normalize safe for concurrent use.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// lemma strips common English inflection suffixes. Deliberately crude: the
// corpus is short curated phrases, so precision matters less than mapping
// "fees"/"fee" and "paying"/"pay" onto the same term.
func lemma(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "sses") && len(tok) > 5:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "ing") && len(tok) > 5:
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed") && len(tok) > 4:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && len(tok) > 3:
		return tok[:len(tok)-1]
	default:
		return tok
	}
}
