package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askmatch/askmatch/engine/index"
	"github.com/askmatch/askmatch/engine/normalize"
	"github.com/askmatch/askmatch/engine/session"
	"github.com/askmatch/askmatch/store"
)

// fakeSource serves an in-memory record set that tests can swap out.
type fakeSource struct {
	mu      sync.Mutex
	records []store.Record
	skipped []store.LoadError
	err     error
}

func (f *fakeSource) LoadAll(_ context.Context) ([]store.Record, []store.LoadError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.skipped, f.err
}

func (f *fakeSource) set(records []store.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func mustRecord(t *testing.T, patterns []string, answer string) store.Record {
	t.Helper()
	record, ok := store.NewRecord(patterns, answer)
	require.True(t, ok)
	return record
}

func defaultConfig() Config {
	return Config{
		MatchThreshold:   0.3,
		SuggestThreshold: 0.1,
		TopK:             5,
		HistoryWindow:    6,
		ContextAugment:   true,
		NgramMax:         1,
		EmptyMessage:     "Please ask a question.",
		FallbackMessage:  "Sorry, I don't know the answer to that.",
	}
}

func newTestEngine(t *testing.T, source Source, cfg Config) *Engine {
	t.Helper()
	hist := session.New(cfg.HistoryWindow*4, time.Hour, nil)
	e := New(source, normalize.New(normalize.Config{}), cfg, hist, nil, nil)
	t.Cleanup(e.Close)
	return e
}

func greetingSource(t *testing.T) *fakeSource {
	return &fakeSource{records: []store.Record{
		mustRecord(t, []string{"hello", "hi"}, "Hi there"),
		mustRecord(t, []string{"bye"}, "Goodbye"),
	}}
}

func TestAnswer_EmptyQuery(t *testing.T) {
	e := newTestEngine(t, greetingSource(t), defaultConfig())

	for _, query := range []string{"", "   ", "\n\t"} {
		result := e.Answer(query, "s1")
		assert.False(t, result.Matched)
		assert.Equal(t, ReasonEmptyQuery, result.Reason)
		assert.Equal(t, "Please ask a question.", result.Answer)
	}
}

func TestAnswer_NotReadyBeforeFirstLoad(t *testing.T) {
	e := newTestEngine(t, greetingSource(t), defaultConfig())

	result := e.Answer("hello", "s1")
	assert.False(t, result.Matched)
	assert.Equal(t, ReasonNotReady, result.Reason)

	questions, ready := e.Health()
	assert.Zero(t, questions)
	assert.False(t, ready)
}

func TestAnswer_MatchAndFallback(t *testing.T) {
	e := newTestEngine(t, greetingSource(t), defaultConfig())
	count, err := e.Reload(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)

	t.Run("known question matches", func(t *testing.T) {
		result := e.Answer("hello", "")
		require.True(t, result.Matched)
		assert.Equal(t, "Hi there", result.Answer)
		assert.GreaterOrEqual(t, result.Score, 0.3)
	})

	t.Run("unknown question falls back", func(t *testing.T) {
		result := e.Answer("xyzzy quux", "")
		assert.False(t, result.Matched)
		assert.Equal(t, ReasonLowConfidence, result.Reason)
		assert.Equal(t, "Sorry, I don't know the answer to that.", result.Answer)
		assert.Less(t, result.Score, 0.3)
	})

	t.Run("ties resolve to the first loaded record", func(t *testing.T) {
		source := &fakeSource{records: []store.Record{
			mustRecord(t, []string{"duplicate"}, "first"),
			mustRecord(t, []string{"duplicate"}, "second"),
		}}
		dup := newTestEngine(t, source, defaultConfig())
		_, err := dup.Reload(context.Background())
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			result := dup.Answer("duplicate", "")
			require.True(t, result.Matched)
			assert.Equal(t, "first", result.Answer)
		}
	})
}

func TestAnswer_HistoryAugmentationIsObservable(t *testing.T) {
	source := &fakeSource{records: []store.Record{
		mustRecord(t, []string{"transfer money abroad bank"}, "Use the transfer desk."),
		mustRecord(t, []string{"weather forecast"}, "Look outside."),
	}}

	cfg := defaultConfig()
	e := newTestEngine(t, source, cfg)
	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	// Baseline: the follow-up question alone, no session context.
	baseline := e.Answer("money", "")
	require.True(t, baseline.Matched)

	// Same follow-up after an on-topic first question in a fixed session.
	first := e.Answer("transfer money abroad bank", "sess")
	require.True(t, first.Matched)
	augmented := e.Answer("money", "sess")
	require.True(t, augmented.Matched)
	assert.Equal(t, "Use the transfer desk.", augmented.Answer)

	assert.Greater(t, augmented.Score, baseline.Score,
		"prior context must be folded into the follow-up score")
}

func TestAnswer_AugmentationDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.ContextAugment = false
	e := newTestEngine(t, greetingSource(t), cfg)
	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	first := e.Answer("hello", "sess")
	require.True(t, first.Matched)
	second := e.Answer("hello", "sess")
	require.True(t, second.Matched)
	assert.Equal(t, first.Score, second.Score,
		"history must not influence scoring when augmentation is off")
}

func TestReload_EmptySourceFailsAndPreservesSnapshot(t *testing.T) {
	source := greetingSource(t)
	e := newTestEngine(t, source, defaultConfig())

	t.Run("no prior snapshot", func(t *testing.T) {
		empty := newTestEngine(t, &fakeSource{}, defaultConfig())
		_, err := empty.Reload(context.Background())
		require.ErrorIs(t, err, index.ErrEmptyCorpus)
		_, ready := empty.Health()
		assert.False(t, ready)
	})

	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	t.Run("prior snapshot kept on failure", func(t *testing.T) {
		source.set(nil)
		_, err := e.Reload(context.Background())
		require.ErrorIs(t, err, index.ErrEmptyCorpus)

		result := e.Answer("hello", "")
		require.True(t, result.Matched, "the previous good snapshot must keep serving")
		assert.Equal(t, "Hi there", result.Answer)

		questions, ready := e.Health()
		assert.True(t, ready)
		assert.Equal(t, 2, questions)
	})
}

func TestReload_SwapsAtomically(t *testing.T) {
	source := greetingSource(t)
	e := newTestEngine(t, source, defaultConfig())
	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				result := e.Answer("hello", "")
				// Every in-flight query sees a complete generation: either
				// the old corpus answer or the new one, never a blend.
				if result.Matched {
					assert.Contains(t, []string{"Hi there", "Hello again"}, result.Answer)
				}
			}
		}()
	}

	source.set([]store.Record{
		mustRecord(t, []string{"hello", "hi"}, "Hello again"),
	})
	count, err := e.Reload(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	close(stop)
	wg.Wait()

	result := e.Answer("hello", "")
	require.True(t, result.Matched)
	assert.Equal(t, "Hello again", result.Answer, "no old-corpus record may match post-swap")
}

func TestReload_Idempotent(t *testing.T) {
	e := newTestEngine(t, greetingSource(t), defaultConfig())

	_, err := e.Reload(context.Background())
	require.NoError(t, err)
	firstHello := e.Answer("hello", "")
	firstBye := e.Answer("bye", "")

	_, err = e.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstHello.Score, e.Answer("hello", "").Score)
	assert.Equal(t, firstBye.Score, e.Answer("bye", "").Score)
}

func TestReload_PropagatesSourceError(t *testing.T) {
	source := &fakeSource{err: context.DeadlineExceeded}
	e := newTestEngine(t, source, defaultConfig())

	_, err := e.Reload(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSuggest(t *testing.T) {
	source := &fakeSource{records: []store.Record{
		mustRecord(t, []string{"fees", "fee structure"}, "Fees overview"),
		mustRecord(t, []string{"fees", "fee schedule"}, "Fee schedule"),
		mustRecord(t, []string{"fee refund policy"}, "Refund policy"),
		mustRecord(t, []string{"opening hours"}, "We open at nine."),
	}}
	e := newTestEngine(t, source, defaultConfig())
	_, err := e.Reload(context.Background())
	require.NoError(t, err)

	t.Run("sorted descending and bounded", func(t *testing.T) {
		got := e.Suggest("fee", 10)
		require.NotEmpty(t, got)
		assert.LessOrEqual(t, len(got), 10)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
		}
	})

	t.Run("deduplicates by display phrase", func(t *testing.T) {
		got := e.Suggest("fees", 10)
		seen := make(map[string]int)
		for _, s := range got {
			seen[s.Text]++
		}
		for text, n := range seen {
			assert.Equal(t, 1, n, "duplicate suggestion %q", text)
		}
	})

	t.Run("respects topK", func(t *testing.T) {
		got := e.Suggest("fee", 1)
		assert.Len(t, got, 1)
	})

	t.Run("zero topK falls back to configured cap", func(t *testing.T) {
		got := e.Suggest("fee", 0)
		assert.LessOrEqual(t, len(got), 5)
	})

	t.Run("unmatchable partial yields nothing", func(t *testing.T) {
		assert.Empty(t, e.Suggest("xyzzy", 5))
		assert.Empty(t, e.Suggest("", 5))
	})
}

func TestSuggest_NotReady(t *testing.T) {
	e := newTestEngine(t, greetingSource(t), defaultConfig())
	assert.Nil(t, e.Suggest("hello", 3))
}
