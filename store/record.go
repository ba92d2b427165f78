// Package store loads the curated question/answer knowledge base from disk
// and exposes it as an ordered list of records.
package store

import "strings"

// Record binds the trigger phrases of one curated question to its canned
// answer. PatternText is the concatenation of all trigger phrases and is the
// text the vector index is built over.
type Record struct {
	PatternText          string
	RepresentativePhrase string
	Answer               string
}

// NewRecord builds a record from raw patterns and an answer. It returns
// false when the entry is unusable (no non-empty pattern, or empty answer)
// and must be excluded from the knowledge base.
func NewRecord(patterns []string, answer string) (Record, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Record{}, false
	}

	usable := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return Record{}, false
	}

	return Record{
		PatternText:          strings.Join(usable, " "),
		RepresentativePhrase: usable[0],
		Answer:               answer,
	}, true
}
