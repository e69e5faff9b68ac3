package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/metrics"
)

type routerFixture struct {
	enc      *fakeEncoder
	kb       *KnowledgeBase
	fallback *fakeFallback
	counters *metrics.Counters
	router   *Router
}

func newRouterFixture(t *testing.T, cfg RouterConfig) *routerFixture {
	t.Helper()
	f := &routerFixture{
		enc:      scenarioEncoder(),
		fallback: &fakeFallback{response: "Let me check that for you."},
		counters: metrics.NewCounters(),
	}
	var err error
	f.kb, err = newScenarioKB(f.enc)
	require.NoError(t, err)

	f.router, err = NewRouter(NewRetriever(f.kb, nil, nil), f.fallback, f.counters, cfg, nil)
	require.NoError(t, err)
	return f
}

func TestRouter_Scenario1_HitRendersTemplate(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})

	out, err := f.router.Answer(context.Background(), "kitna data bacha hai", entities.Context{"balance_mb": 512}, 0.65)
	require.NoError(t, err)

	assert.Equal(t, entities.DecisionHit, out.Decision)
	assert.Equal(t, "balance", out.Category)
	assert.Equal(t, balanceEntry.ID, out.EntryID)
	assert.InDelta(t, 0.82, out.Score, 1e-6)
	assert.Equal(t, "Aapka balance 512 MB hai", out.Answer)
	assert.Equal(t, entities.SourceTemplate, out.Source)
	assert.Zero(t, f.fallback.Calls())

	s := f.counters.Snapshot()
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 1, s.HitsByCategory["balance"])
}

func TestRouter_Scenario2_MissUsesFallbackVerbatim(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	facts := entities.Context{"balance_mb": 512}

	out, err := f.router.Answer(context.Background(), "what's the weather today", facts, 0.65)
	require.NoError(t, err)

	assert.Equal(t, entities.DecisionMiss, out.Decision)
	assert.Equal(t, entities.ReasonBelowThreshold, out.Reason)
	assert.InDelta(t, 0.21, out.Score, 1e-6)
	assert.Equal(t, "Let me check that for you.", out.Answer)
	assert.Equal(t, entities.SourceFallback, out.Source)

	assert.Equal(t, 1, f.fallback.Calls())
	assert.Equal(t, "what's the weather today", f.fallback.lastQuery)
	assert.Equal(t, facts, f.fallback.lastFacts)

	s := f.counters.Snapshot()
	assert.EqualValues(t, 1, s.Misses)
	assert.Zero(t, s.Hits)
}

func TestRouter_Scenario3_MissingContextKeyDowngrades(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})

	out, err := f.router.Answer(context.Background(), "plan kab khatam hoga", entities.Context{"expiry_date": "5 May"}, 0.65)
	require.NoError(t, err)

	assert.Equal(t, entities.DecisionMiss, out.Decision)
	assert.Equal(t, entities.ReasonMissingContextKey, out.Reason)
	assert.Equal(t, planEntry.ID, out.EntryID)
	assert.Greater(t, out.Score, 0.65)
	assert.Equal(t, "Let me check that for you.", out.Answer)
	assert.NotContains(t, out.Answer, "{plan_name}")
	assert.Equal(t, 1, f.fallback.Calls())

	s := f.counters.Snapshot()
	assert.EqualValues(t, 1, s.Misses)
	assert.Zero(t, s.Hits)
	assert.Empty(t, s.HitsByCategory)
}

func TestRouter_EncodingUnavailableFallsBack(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	f.enc.err = errBoom

	out, err := f.router.Answer(context.Background(), "kitna data bacha hai", nil, 0.65)
	require.NoError(t, err)
	assert.Equal(t, entities.ReasonEncodingUnavailable, out.Reason)
	assert.Equal(t, 1, f.fallback.Calls())
}

func TestRouter_EmptyIndexIsMiss(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.5})
	_, err := f.kb.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	out, err := f.router.Answer(context.Background(), "kitna data bacha hai", nil, 0.5)
	require.NoError(t, err)
	assert.Equal(t, entities.ReasonEmptyIndex, out.Reason)
	assert.Equal(t, 1, f.fallback.Calls())
}

func TestRouter_FallbackFailureIsOnlySurfacedError(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	f.fallback.err = errBoom

	out, err := f.router.Answer(context.Background(), "what's the weather today", nil, 0.65)
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrFallbackFailure)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, entities.ErrTimeout)
	assert.Equal(t, entities.DecisionMiss, out.Decision)

	s := f.counters.Snapshot()
	assert.EqualValues(t, 1, s.Misses)
	assert.EqualValues(t, 1, s.FallbackFailures)

	f.enc.err = errBoom
	_, err = f.router.Answer(context.Background(), "kitna data bacha hai", nil, 0.65)
	assert.ErrorIs(t, err, entities.ErrFallbackFailure)
	assert.NotErrorIs(t, err, entities.ErrEncodingUnavailable, "encoding errors are absorbed")
}

func TestRouter_Timeout(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65, QueryTimeout: 50 * time.Millisecond})
	f.fallback.block = true

	start := time.Now()
	_, err := f.router.Answer(context.Background(), "what's the weather today", nil, 0.65)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.ErrorIs(t, err, entities.ErrFallbackFailure)
	assert.ErrorIs(t, err, entities.ErrTimeout)
	assert.EqualValues(t, 1, f.counters.Snapshot().Misses)

	// A slow encoder hits the same deadline and surfaces the same way.
	f.fallback.block = false
	f.enc.delay = time.Second
	_, err = f.router.Answer(context.Background(), "kitna data bacha hai", nil, 0.65)
	assert.ErrorIs(t, err, entities.ErrTimeout)
}

func TestRouter_Determinism(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	facts := entities.Context{"balance_mb": 512}

	first, err := f.router.Answer(context.Background(), "kitna data bacha hai", facts, 0.65)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := f.router.Answer(context.Background(), "kitna data bacha hai", facts, 0.65)
		require.NoError(t, err)
		assert.Equal(t, first.Decision, again.Decision)
		assert.Equal(t, first.Score, again.Score)
		assert.Equal(t, first.Answer, again.Answer)
	}
}

func TestRouter_ThresholdMonotonicity(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	queries := []string{"kitna data bacha hai", "what's the weather today", "plan kab khatam hoga"}
	thresholds := []float64{0, 0.1, 0.21, 0.5, 0.65, 0.82, 0.9, 0.99, 1}

	for _, q := range queries {
		for i := range thresholds {
			for j := i + 1; j < len(thresholds); j++ {
				lo, err := f.router.retriever.Retrieve(context.Background(), q, thresholds[i])
				require.NoError(t, err)
				hi, err := f.router.retriever.Retrieve(context.Background(), q, thresholds[j])
				require.NoError(t, err)

				if hi.Hit() {
					assert.True(t, lo.Hit(), "%q: hit at %v but miss at %v", q, thresholds[j], thresholds[i])
					assert.Equal(t, hi.EntryID, lo.EntryID)
					assert.Equal(t, hi.Score, lo.Score)
				}
			}
		}
	}
}

func TestRouter_MetricsConservation(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})
	queries := []string{"kitna data bacha hai", "what's the weather today", "plan kab khatam hoga", "unknown query"}
	facts := entities.Context{"balance_mb": 1, "plan_name": "Max", "expiry_date": "today"}

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.router.Answer(context.Background(), queries[i%len(queries)], facts, 0.65)
		}(i)
	}
	wg.Wait()

	s := f.counters.Snapshot()
	assert.EqualValues(t, n, s.Total)
	assert.EqualValues(t, n, s.Hits+s.Misses)
	assert.EqualValues(t, n/2, s.Hits)
}

func TestRouter_InvalidThreshold(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0.65})

	_, err := f.router.Answer(context.Background(), "kitna data bacha hai", nil, 1.5)
	assert.ErrorIs(t, err, entities.ErrInvalidConfig)
	assert.Zero(t, f.counters.Snapshot().Total)

	_, err = NewRouter(f.router.retriever, f.fallback, f.counters, RouterConfig{Threshold: -1}, nil)
	assert.ErrorIs(t, err, entities.ErrInvalidConfig)
	_, err = NewRouter(nil, f.fallback, f.counters, RouterConfig{Threshold: 0.5}, nil)
	assert.True(t, errors.Is(err, entities.ErrInvalidConfig))
}

func TestRouter_NeverSurfacesPlaceholderSyntax(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{Threshold: 0})
	for _, facts := range []entities.Context{nil, {}, {"balance_mb": nil}, {"plan_name": "X"}} {
		for _, q := range []string{"kitna data bacha hai", "plan kab khatam hoga"} {
			out, err := f.router.Answer(context.Background(), q, facts, 0)
			require.NoError(t, err)
			if out.Source == entities.SourceTemplate {
				assert.False(t, strings.ContainsAny(out.Answer, "{}"), "rendered %q", out.Answer)
			}
		}
	}
}
