// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/snapshot"
	"github.com/0xcro3dile/faqroute/internal/domain/template"
	"github.com/0xcro3dile/faqroute/internal/domain/vecmath"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// Store is an immutable, fully built knowledge base: entries, their
// parsed templates and the index over their vectors. A Store is never
// modified after construction, so any number of readers may share it.
type Store struct {
	snap      *entities.Snapshot
	index     ports.Index
	byID      map[string]*entities.KnowledgeEntry
	templates map[string]*template.Template
}

// Snapshot returns the persistable state. Callers must not modify it.
func (s *Store) Snapshot() *entities.Snapshot { return s.snap }

// Len is the number of entries.
func (s *Store) Len() int { return len(s.snap.Entries) }

// Dimension is the vector size of the index.
func (s *Store) Dimension() int { return s.snap.Dimension }

// EncoderID names the encoder that produced the vectors.
func (s *Store) EncoderID() string { return s.snap.EncoderID }

// Entry looks up an entry by id.
func (s *Store) Entry(id string) (entities.KnowledgeEntry, bool) {
	e, ok := s.byID[id]
	if !ok {
		return entities.KnowledgeEntry{}, false
	}
	return *e, true
}

// Search runs the index; an empty store returns nil.
func (s *Store) Search(query []float32, k int) []entities.Match {
	if s.index == nil {
		return nil
	}
	return s.index.Search(query, k)
}

// Render fills the entry's template with facts.
func (s *Store) Render(id string, facts entities.Context) (string, error) {
	tmpl, ok := s.templates[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown entry %q", entities.ErrInvalidEntry, id)
	}
	return tmpl.Render(facts)
}

// KnowledgeBaseConfig tunes index builds.
type KnowledgeBaseConfig struct {
	// Dimension fixes D. Zero takes it from the encoder, or from the first
	// vector when the encoder does not know it up front.
	Dimension int
	// EncodeConcurrency bounds parallel EncodeBatch calls.
	EncodeConcurrency int
	// BatchSize is the number of texts per EncodeBatch call.
	BatchSize int
}

// KnowledgeBase owns the serving Store. Reads are lock-free through an
// atomic pointer; rebuilds construct a new Store off to the side and swap
// it in, serialized by a mutex.
type KnowledgeBase struct {
	encoder    ports.Encoder
	buildIndex ports.IndexBuilder
	log        logger.ILogger

	dimension   int
	concurrency int
	batchSize   int

	current   atomic.Pointer[Store]
	rebuildMu sync.Mutex
	onSwap    []func(*Store)
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase(encoder ports.Encoder, buildIndex ports.IndexBuilder, cfg KnowledgeBaseConfig, log logger.ILogger) (*KnowledgeBase, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", entities.ErrInvalidConfig)
	}
	if buildIndex == nil {
		return nil, fmt.Errorf("%w: index builder is required", entities.ErrInvalidConfig)
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: dimension %d", entities.ErrInvalidConfig, cfg.Dimension)
	}
	if cfg.EncodeConcurrency <= 0 {
		cfg.EncodeConcurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if log == nil {
		log = logger.NewNop()
	}

	kb := &KnowledgeBase{
		encoder:     encoder,
		buildIndex:  buildIndex,
		log:         log,
		dimension:   cfg.Dimension,
		concurrency: cfg.EncodeConcurrency,
		batchSize:   cfg.BatchSize,
	}
	kb.current.Store(&Store{
		snap:      &entities.Snapshot{EncoderID: encoder.Identifier(), Dimension: kb.expectedDimension()},
		byID:      map[string]*entities.KnowledgeEntry{},
		templates: map[string]*template.Template{},
	})
	return kb, nil
}

// Encoder returns the encoder entries were built with.
func (kb *KnowledgeBase) Encoder() ports.Encoder { return kb.encoder }

// Current returns the serving Store. It is never nil.
func (kb *KnowledgeBase) Current() *Store { return kb.current.Load() }

// OnSwap registers fn to run after every successful swap. Not safe to call
// concurrently with Rebuild.
func (kb *KnowledgeBase) OnSwap(fn func(*Store)) {
	kb.onSwap = append(kb.onSwap, fn)
}

func (kb *KnowledgeBase) expectedDimension() int {
	if kb.dimension > 0 {
		return kb.dimension
	}
	return kb.encoder.Dimension()
}

// Load validates entries, encodes them and builds a Store without making
// it current. Any encoder failure fails the whole load.
func (kb *KnowledgeBase) Load(ctx context.Context, entries []entities.KnowledgeEntry) (*Store, error) {
	start := time.Now()

	prepared, err := prepareEntries(entries)
	if err != nil {
		return nil, err
	}

	vectors, err := kb.encodeAll(ctx, prepared)
	if err != nil {
		return nil, err
	}

	dim := kb.expectedDimension()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}

	records := make([]entities.EmbeddingRecord, len(prepared))
	for i, e := range prepared {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: entry %s encoded to %d dims, want %d",
				entities.ErrDimensionMismatch, e.ID, len(vectors[i]), dim)
		}
		unit, err := vecmath.Normalize(vectors[i])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", entities.ErrInvalidEntry, e.ID, err)
		}
		records[i] = entities.EmbeddingRecord{EntryID: e.ID, Vector: unit}
	}

	store, err := kb.newStore(&entities.Snapshot{
		EncoderID: kb.encoder.Identifier(),
		Dimension: dim,
		Entries:   prepared,
		Records:   records,
		BuiltAt:   time.Now().UTC(),
	}, prepared)
	if err != nil {
		return nil, err
	}

	kb.log.Info("knowledge", "snapshot built", map[string]interface{}{
		"entries":  len(prepared),
		"dims":     dim,
		"encoder":  kb.encoder.Identifier(),
		"duration": time.Since(start).String(),
	})
	return store, nil
}

// Rebuild loads entries and atomically replaces the serving Store.
// Readers keep using the previous Store until the swap; on error the
// previous Store keeps serving.
func (kb *KnowledgeBase) Rebuild(ctx context.Context, entries []entities.KnowledgeEntry) (*Store, error) {
	kb.rebuildMu.Lock()
	defer kb.rebuildMu.Unlock()

	store, err := kb.Load(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("rebuilding knowledge base: %w", err)
	}
	kb.swap(store)
	return store, nil
}

// Install makes an already built Store current, e.g. one from Restore.
func (kb *KnowledgeBase) Install(store *Store) {
	kb.rebuildMu.Lock()
	defer kb.rebuildMu.Unlock()
	kb.swap(store)
}

func (kb *KnowledgeBase) swap(store *Store) {
	kb.current.Store(store)
	for _, fn := range kb.onSwap {
		fn(store)
	}
}

// Persist serializes the serving Store.
func (kb *KnowledgeBase) Persist() ([]byte, error) {
	return snapshot.Marshal(kb.Current().snap)
}

// Restore decodes a blob into a Store, checking it against the live
// encoder. The result is not made current; see Install.
func (kb *KnowledgeBase) Restore(blob []byte) (*Store, error) {
	snap, err := snapshot.Unmarshal(blob)
	if err != nil {
		return nil, err
	}
	return kb.FromSnapshot(snap)
}

// FromSnapshot builds a Store from decoded state, re-deriving placeholders
// and the index.
func (kb *KnowledgeBase) FromSnapshot(snap *entities.Snapshot) (*Store, error) {
	if err := snapshot.Validate(snap); err != nil {
		return nil, err
	}
	if err := snapshot.CheckCompatible(snap, kb.encoder.Identifier(), kb.expectedDimension()); err != nil {
		return nil, err
	}
	prepared, err := prepareEntries(snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrIncompatibleSnapshot, err)
	}
	restored := *snap
	restored.Entries = prepared
	return kb.newStore(&restored, prepared)
}

// Save writes the serving Store to repo.
func (kb *KnowledgeBase) Save(ctx context.Context, repo ports.SnapshotRepository) error {
	store := kb.Current()
	if err := repo.Save(ctx, store.snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	kb.log.Info("knowledge", "snapshot saved", map[string]interface{}{"entries": store.Len()})
	return nil
}

// Open loads a snapshot from repo and makes it current.
func (kb *KnowledgeBase) Open(ctx context.Context, repo ports.SnapshotRepository) (*Store, error) {
	snap, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	store, err := kb.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	kb.Install(store)
	kb.log.Info("knowledge", "snapshot restored", map[string]interface{}{
		"entries":  store.Len(),
		"built_at": snap.BuiltAt.Format(time.RFC3339),
	})
	return store, nil
}

// LoadOrBuild serves the persisted snapshot when it exists and matches the
// live encoder; otherwise it builds from source entries and saves the result.
func (kb *KnowledgeBase) LoadOrBuild(ctx context.Context, repo ports.SnapshotRepository, source func(context.Context) ([]entities.KnowledgeEntry, error)) (*Store, error) {
	store, err := kb.Open(ctx, repo)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, entities.ErrSnapshotNotFound) && !errors.Is(err, entities.ErrIncompatibleSnapshot) {
		return nil, err
	}
	kb.log.Info("knowledge", "building snapshot from source", map[string]interface{}{"reason": err.Error()})

	entries, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	store, err = kb.Rebuild(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err := kb.Save(ctx, repo); err != nil {
		return nil, err
	}
	return store, nil
}

func (kb *KnowledgeBase) newStore(snap *entities.Snapshot, prepared []entities.KnowledgeEntry) (*Store, error) {
	var index ports.Index
	if snap.Dimension > 0 {
		var err error
		index, err = kb.buildIndex(snap.Dimension, snap.Records)
		if err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
	}

	store := &Store{
		snap:      snap,
		index:     index,
		byID:      make(map[string]*entities.KnowledgeEntry, len(prepared)),
		templates: make(map[string]*template.Template, len(prepared)),
	}
	for i := range prepared {
		e := &prepared[i]
		store.byID[e.ID] = e
		store.templates[e.ID] = template.MustParse(e.AnswerTemplate)
	}
	return store, nil
}

// encodeAll splits texts into batches and encodes them on a bounded
// worker pool. Results stay aligned with entries.
func (kb *KnowledgeBase) encodeAll(ctx context.Context, entries []entities.KnowledgeEntry) ([][]float32, error) {
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.RepresentativeText()
	}
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(kb.concurrency)

	for start := 0; start < len(texts); start += kb.batchSize {
		end := min(start+kb.batchSize, len(texts))
		g.Go(func() error {
			out, err := kb.encoder.EncodeBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(out) != end-start {
				return fmt.Errorf("encoder returned %d vectors for %d texts", len(out), end-start)
			}
			copy(vectors[start:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrEncodingUnavailable, err)
	}
	return vectors, nil
}

// prepareEntries checks ids, questions and templates, and fills
// Placeholders. It returns copies; the input is not modified.
func prepareEntries(entries []entities.KnowledgeEntry) ([]entities.KnowledgeEntry, error) {
	out := make([]entities.KnowledgeEntry, len(entries))
	seen := make(map[string]bool, len(entries))

	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", entities.ErrInvalidEntry, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", entities.ErrInvalidEntry, e.ID)
		}
		seen[e.ID] = true
		if e.Question == "" {
			return nil, fmt.Errorf("%w: entry %s has no question", entities.ErrInvalidEntry, e.ID)
		}

		tmpl, err := template.Parse(e.AnswerTemplate)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", entities.ErrInvalidEntry, e.ID, err)
		}

		e.Variations = append([]string(nil), e.Variations...)
		e.Placeholders = tmpl.Placeholders()
		out[i] = e
	}
	return out, nil
}
