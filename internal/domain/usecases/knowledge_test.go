package usecases

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/faqroute/internal/adapters/vectordb"
	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/vecmath"
)

func TestKnowledgeBase_LoadNormalizesAndParses(t *testing.T) {
	enc := &fakeEncoder{dims: 2, vectors: map[string][]float32{
		"q1 v1": {3, 4},
		"q2":    {0, 10},
	}}
	kb, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)

	store, err := kb.Load(context.Background(), []entities.KnowledgeEntry{
		{ID: "a", Question: "q1", Variations: []string{"v1"}, AnswerTemplate: "{x} and {y} and {x}"},
		{ID: "b", Question: "q2", AnswerTemplate: "plain"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 2, store.Dimension())
	assert.Equal(t, "fake", store.EncoderID())
	for _, r := range store.Snapshot().Records {
		assert.True(t, vecmath.IsUnit(r.Vector), "record %s not unit length", r.EntryID)
	}

	a, ok := store.Entry("a")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, a.Placeholders)

	assert.Zero(t, kb.Current().Len(), "Load must not swap")
}

func TestKnowledgeBase_LoadFailures(t *testing.T) {
	ok := entities.KnowledgeEntry{ID: "a", Question: "q", AnswerTemplate: "fine"}

	tests := []struct {
		name    string
		enc     *fakeEncoder
		entries []entities.KnowledgeEntry
		want    error
	}{
		{
			name:    "encoder down",
			enc:     &fakeEncoder{dims: 2, err: errBoom},
			entries: []entities.KnowledgeEntry{ok},
			want:    entities.ErrEncodingUnavailable,
		},
		{
			name:    "duplicate id",
			enc:     &fakeEncoder{dims: 2, vectors: map[string][]float32{"q": {1, 0}}},
			entries: []entities.KnowledgeEntry{ok, ok},
			want:    entities.ErrInvalidEntry,
		},
		{
			name:    "empty question",
			enc:     &fakeEncoder{dims: 2},
			entries: []entities.KnowledgeEntry{{ID: "a", AnswerTemplate: "x"}},
			want:    entities.ErrInvalidEntry,
		},
		{
			name:    "malformed template",
			enc:     &fakeEncoder{dims: 2},
			entries: []entities.KnowledgeEntry{{ID: "a", Question: "q", AnswerTemplate: "hi {name"}},
			want:    entities.ErrInvalidEntry,
		},
		{
			name:    "dimension mismatch",
			enc:     &fakeEncoder{dims: 3, vectors: map[string][]float32{"q": {1, 0}}},
			entries: []entities.KnowledgeEntry{ok},
			want:    entities.ErrDimensionMismatch,
		},
		{
			name:    "zero vector",
			enc:     &fakeEncoder{dims: 2, vectors: map[string][]float32{"q": {0, 0}}},
			entries: []entities.KnowledgeEntry{ok},
			want:    entities.ErrInvalidEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb, err := NewKnowledgeBase(tt.enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
			require.NoError(t, err)

			_, err = kb.Rebuild(context.Background(), tt.entries)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, kb.Current().Len(), "failed rebuild must keep the previous store")
		})
	}
}

func TestKnowledgeBase_BatchedEncodingStaysAligned(t *testing.T) {
	const n = 100
	enc := &fakeEncoder{dims: n, vectors: map[string][]float32{}}
	entries := make([]entities.KnowledgeEntry, n)
	for i := 0; i < n; i++ {
		q := fmt.Sprintf("question %d", i)
		v := make([]float32, n)
		v[i] = 1
		enc.vectors[q] = v
		entries[i] = entities.KnowledgeEntry{ID: fmt.Sprintf("e%03d", i), Question: q, AnswerTemplate: "a"}
	}

	kb, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{EncodeConcurrency: 8, BatchSize: 7}, nil)
	require.NoError(t, err)
	store, err := kb.Rebuild(context.Background(), entries)
	require.NoError(t, err)

	for i, r := range store.Snapshot().Records {
		require.Equal(t, entries[i].ID, r.EntryID)
		assert.Equal(t, float32(1), r.Vector[i], "entry %s got another entry's vector", r.EntryID)
	}
	assert.EqualValues(t, n, enc.calls.Load())
}

func TestKnowledgeBase_LearnsDimensionFromVectors(t *testing.T) {
	enc := &fakeEncoder{vectors: map[string][]float32{"q": {1, 1, 1}}}
	kb, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)

	store, err := kb.Rebuild(context.Background(), []entities.KnowledgeEntry{{ID: "a", Question: "q"}})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Dimension())
}

func TestKnowledgeBase_RebuildSwapsAndNotifies(t *testing.T) {
	kb, err := newScenarioKB(scenarioEncoder())
	require.NoError(t, err)

	var swapped []int
	kb.OnSwap(func(s *Store) { swapped = append(swapped, s.Len()) })

	before := kb.Current()
	_, err = kb.Rebuild(context.Background(), []entities.KnowledgeEntry{balanceEntry})
	require.NoError(t, err)

	assert.Equal(t, 2, before.Len(), "old store is never mutated")
	assert.Equal(t, 1, kb.Current().Len())
	assert.Equal(t, []int{1}, swapped)
}

func TestKnowledgeBase_PersistRestoreRoundTrip(t *testing.T) {
	enc := scenarioEncoder()
	kb, err := newScenarioKB(enc)
	require.NoError(t, err)

	blob, err := kb.Persist()
	require.NoError(t, err)

	kb2, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)
	restored, err := kb2.Restore(blob)
	require.NoError(t, err)
	kb2.Install(restored)

	e, ok := restored.Entry(planEntry.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"plan_name", "expiry_date"}, e.Placeholders)

	r1 := NewRetriever(kb, nil, nil)
	r2 := NewRetriever(kb2, nil, nil)
	for _, q := range []string{"kitna data bacha hai", "what's the weather today", "plan kab khatam hoga"} {
		for _, th := range []float64{0, 0.2, 0.65, 0.9} {
			o1, err := r1.Retrieve(context.Background(), q, th)
			require.NoError(t, err)
			o2, err := r2.Retrieve(context.Background(), q, th)
			require.NoError(t, err)

			o1.Latency, o2.Latency = 0, 0
			assert.Equal(t, o1, o2, "query %q threshold %v", q, th)
		}
	}
}

func TestKnowledgeBase_RestoreRejectsOtherEncoder(t *testing.T) {
	kb, err := newScenarioKB(scenarioEncoder())
	require.NoError(t, err)
	blob, err := kb.Persist()
	require.NoError(t, err)

	other := scenarioEncoder()
	other.id = "another-model"
	kb2, err := NewKnowledgeBase(other, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)

	_, err = kb2.Restore(blob)
	assert.ErrorIs(t, err, entities.ErrIncompatibleSnapshot)

	_, err = kb2.Restore([]byte("not a snapshot"))
	assert.ErrorIs(t, err, entities.ErrIncompatibleSnapshot)
}

func TestKnowledgeBase_LoadOrBuild(t *testing.T) {
	enc := scenarioEncoder()
	repo := &memRepo{}
	sourceCalls := 0
	source := func(context.Context) ([]entities.KnowledgeEntry, error) {
		sourceCalls++
		return []entities.KnowledgeEntry{balanceEntry, planEntry}, nil
	}

	kb, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)
	store, err := kb.LoadOrBuild(context.Background(), repo, source)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, sourceCalls)
	assert.Equal(t, 1, repo.saves)

	kb2, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	require.NoError(t, err)
	store2, err := kb2.LoadOrBuild(context.Background(), repo, source)
	require.NoError(t, err)
	assert.Equal(t, 2, store2.Len())
	assert.Equal(t, 1, sourceCalls, "existing snapshot must be reused")
}

func TestKnowledgeBase_ConcurrentReadsDuringRebuild(t *testing.T) {
	enc := scenarioEncoder()
	kb, err := newScenarioKB(enc)
	require.NoError(t, err)
	retriever := NewRetriever(kb, nil, nil)

	sets := [][]entities.KnowledgeEntry{
		{balanceEntry, planEntry},
		{balanceEntry},
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 64)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				store := kb.Current()
				if n := store.Len(); n != 1 && n != 2 {
					errs <- fmt.Errorf("observed partial store with %d entries", n)
					return
				}
				if len(store.Snapshot().Records) != store.Len() {
					errs <- fmt.Errorf("entries and records out of step")
					return
				}
				o, err := retriever.Retrieve(context.Background(), "kitna data bacha hai", 0.65)
				if err != nil || !o.Hit() || o.EntryID != balanceEntry.ID {
					errs <- fmt.Errorf("unexpected outcome %+v err %v", o, err)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_, err := kb.Rebuild(context.Background(), sets[i%2])
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
