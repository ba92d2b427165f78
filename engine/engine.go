// Package engine orchestrates normalization, index lookup and acceptance
// thresholds to answer free-text questions from the curated knowledge base.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/askmatch/askmatch/engine/index"
	"github.com/askmatch/askmatch/engine/normalize"
	"github.com/askmatch/askmatch/engine/session"
	"github.com/askmatch/askmatch/metrics"
	"github.com/askmatch/askmatch/store"
)

// ErrNotReady is returned when no snapshot has ever been built, so the
// engine has nothing to score against.
var ErrNotReady = errors.New("no serving snapshot")

// Source supplies the knowledge base records. The store.Loader is the
// production implementation; tests substitute in-memory sources.
type Source interface {
	LoadAll(ctx context.Context) ([]store.Record, []store.LoadError, error)
}

// Reason classifies why a query fell back instead of matching.
type Reason string

const (
	ReasonEmptyQuery    Reason = "empty_query"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonNotReady      Reason = "not_ready"
)

// Result is the outcome of one Answer call: either a matched canned answer
// with its similarity score, or a fallback message with a reason.
type Result struct {
	Answer  string
	Score   float64
	Matched bool
	Reason  Reason
}

// Suggestion is one autocomplete candidate for a partial query.
type Suggestion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Config holds the retrieval tuning surface. All values are externally
// tunable; the profile fills defaults at validation time, so Config is used
// as-is here.
type Config struct {
	MatchThreshold   float64
	SuggestThreshold float64
	TopK             int
	HistoryWindow    int
	NgramMax         int
	ContextAugment   bool
	EmptyMessage     string
	FallbackMessage  string
}

// snapshot is the immutable serving pair: records and the index derived
// from them in the same load generation.
type snapshot struct {
	records []store.Record
	index   *index.Snapshot
}

// Engine serves concurrent read-only queries against an atomically swapped
// snapshot pair. Queries never lock; Reload publishes a new pair with a
// single pointer store so readers see fully-old or fully-new, never a mix.
type Engine struct {
	source  Source
	norm    *normalize.Normalizer
	cfg     Config
	history *session.History
	metrics *metrics.Metrics
	logger  *slog.Logger

	snap  atomic.Pointer[snapshot]
	group singleflight.Group
}

// New creates an engine without a serving snapshot; call Reload to build
// the first one. metrics may be nil.
func New(source Source, norm *normalize.Normalizer, cfg Config, hist *session.History, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if hist == nil {
		hist = session.New(0, 0, logger)
	}
	return &Engine{
		source:  source,
		norm:    norm,
		cfg:     cfg,
		history: hist,
		metrics: m,
		logger:  logger,
	}
}

// Answer matches query against the knowledge base and returns the canned
// answer of the best-scoring record, or a fallback. On a match the exchange
// is appended to the session history.
func (e *Engine) Answer(query, sessionID string) Result {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		e.observeQuery(metrics.OutcomeEmptyQuery)
		return Result{Answer: e.cfg.EmptyMessage, Reason: ReasonEmptyQuery}
	}

	snap := e.snap.Load()
	if snap == nil {
		e.observeQuery(metrics.OutcomeNotReady)
		return Result{Answer: e.cfg.FallbackMessage, Reason: ReasonNotReady}
	}

	// Context only ever appends before the current query: a specific current
	// question can never be fully overridden by stale history.
	scored := trimmed
	if e.cfg.ContextAugment && sessionID != "" {
		if window := e.history.Window(sessionID, e.cfg.HistoryWindow); len(window) > 0 {
			scored = strings.Join(append(window, trimmed), " ")
		}
	}

	scores := snap.index.Score(e.norm.Normalize(scored))
	best, bestScore := argmax(scores)
	if e.metrics != nil {
		e.metrics.ObserveBestScore(bestScore)
	}

	if best < 0 || bestScore < e.cfg.MatchThreshold {
		e.logger.Info("query below match threshold",
			"score", bestScore, "threshold", e.cfg.MatchThreshold)
		e.observeQuery(metrics.OutcomeLowConfidence)
		return Result{Answer: e.cfg.FallbackMessage, Score: bestScore, Reason: ReasonLowConfidence}
	}

	answer := snap.records[best].Answer
	if sessionID != "" {
		e.history.Append(sessionID, trimmed, answer)
	}
	e.observeQuery(metrics.OutcomeMatched)
	return Result{Answer: answer, Score: bestScore, Matched: true}
}

// Suggest returns up to topK suggestions for a partial query, sorted by
// descending confidence, deduplicated by display phrase (first occurrence
// wins, preserving rank order). topK <= 0 falls back to the configured cap.
func (e *Engine) Suggest(partial string, topK int) []Suggestion {
	if e.metrics != nil {
		e.metrics.ObserveSuggest()
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	normalized := e.norm.Normalize(strings.TrimSpace(partial))
	if normalized == "" {
		return nil
	}

	scores := snap.index.Score(normalized)
	candidates := make([]int, 0, len(scores))
	for i, s := range scores {
		if s >= e.cfg.SuggestThreshold && s > 0 {
			candidates = append(candidates, i)
		}
	}
	// Stable sort keeps the first-loaded record ahead on score ties.
	sort.SliceStable(candidates, func(a, b int) bool {
		return scores[candidates[a]] > scores[candidates[b]]
	})

	seen := make(map[string]struct{}, len(candidates))
	out := make([]Suggestion, 0, topK)
	for _, i := range candidates {
		phrase := snap.records[i].RepresentativePhrase
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		out = append(out, Suggestion{
			Text: phrase,
			// Rounded for display stability.
			Confidence: math.Round(scores[i]*100) / 100,
		})
		if len(out) == topK {
			break
		}
	}
	return out
}

// Reload re-reads the knowledge source, builds a fresh index and publishes
// both with one atomic swap. On any failure the previous serving snapshot
// stays untouched. Concurrent calls are collapsed into a single load.
func (e *Engine) Reload(ctx context.Context) (int, error) {
	count, err, _ := e.group.Do("reload", func() (any, error) {
		started := time.Now()
		records, skipped, err := e.source.LoadAll(ctx)
		if err != nil {
			return 0, err
		}
		if len(skipped) > 0 {
			e.logger.Warn("skipped malformed knowledge documents", "count", len(skipped))
		}
		if len(records) == 0 {
			return 0, errors.Wrap(index.ErrEmptyCorpus, "knowledge source yielded no usable records")
		}

		corpus := make([]string, len(records))
		for i, r := range records {
			corpus[i] = e.norm.Normalize(r.PatternText)
		}
		idx, err := index.Build(corpus, index.Options{NgramMax: e.cfg.NgramMax})
		if err != nil {
			return 0, errors.Wrap(err, "build index")
		}

		e.snap.Store(&snapshot{records: records, index: idx})
		e.logger.Info("knowledge base reloaded",
			"questions", len(records),
			"terms", idx.Terms(),
			"skipped", len(skipped),
			"elapsed", time.Since(started))
		return len(records), nil
	})
	if err != nil {
		e.observeReload(metrics.ReloadFailed, 0)
		return 0, err
	}
	n := count.(int)
	e.observeReload(metrics.ReloadOK, n)
	return n, nil
}

// Health reports the serving snapshot size and readiness.
func (e *Engine) Health() (questions int, ready bool) {
	snap := e.snap.Load()
	if snap == nil {
		return 0, false
	}
	return len(snap.records), true
}

// Close releases background resources (the session sweeper).
func (e *Engine) Close() {
	e.history.Close()
}

func (e *Engine) observeQuery(outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveQuery(outcome)
	}
}

func (e *Engine) observeReload(status string, questions int) {
	if e.metrics != nil {
		e.metrics.ObserveReload(status, questions)
	}
}

// argmax returns the index and value of the maximum score, ties broken by
// the lowest index so the first-loaded record wins deterministically.
func argmax(scores []float64) (int, float64) {
	best, bestScore := -1, 0.0
	for i, s := range scores {
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}
