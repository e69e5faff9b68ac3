package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/faqroute/internal/adapters/vectordb"
	"github.com/0xcro3dile/faqroute/internal/domain/entities"
)

// fakeEncoder maps known texts to fixed vectors.
type fakeEncoder struct {
	vectors map[string][]float32
	dims    int
	id      string
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (f *fakeEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEncoder) Dimension() int { return f.dims }

func (f *fakeEncoder) Identifier() string {
	if f.id == "" {
		return "fake"
	}
	return f.id
}

// fakeFallback records what it was asked.
type fakeFallback struct {
	mu        sync.Mutex
	response  string
	err       error
	block     bool
	calls     int
	lastQuery string
	lastFacts entities.Context
}

func (f *fakeFallback) Generate(ctx context.Context, query string, facts entities.Context) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastQuery = query
	f.lastFacts = facts
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeFallback) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memRepo is an in-memory ports.SnapshotRepository.
type memRepo struct {
	snap  *entities.Snapshot
	saves int
}

func (m *memRepo) Save(_ context.Context, snap *entities.Snapshot) error {
	m.snap = snap
	m.saves++
	return nil
}

func (m *memRepo) Load(context.Context) (*entities.Snapshot, error) {
	if m.snap == nil {
		return nil, entities.ErrSnapshotNotFound
	}
	return m.snap, nil
}

func (m *memRepo) Close() error { return nil }

// unit returns v scaled to length one, in float64 then rounded once.
func unit(v ...float64) []float32 {
	var n float64
	for _, x := range v {
		n += x * x
	}
	n = math.Sqrt(n)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / n)
	}
	return out
}

// withScore returns a unit vector whose dot product with axis 0 is s;
// the remainder goes to axis `rest`.
func withScore(dims int, s float64, rest int) []float32 {
	v := make([]float64, dims)
	v[0] = s
	v[rest] = math.Sqrt(1 - s*s)
	return unit(v...)
}

const (
	balanceText = "what is my data balance kitna data bacha hai remaining data"
	planText    = "when does my plan expire plan kab khatam hoga"
)

var (
	balanceEntry = entities.KnowledgeEntry{
		ID:             "001",
		Question:       "what is my data balance",
		Variations:     []string{"kitna data bacha hai", "remaining data"},
		AnswerTemplate: "Aapka balance {balance_mb} MB hai",
		Category:       "balance",
	}
	planEntry = entities.KnowledgeEntry{
		ID:             "002",
		Question:       "when does my plan expire",
		Variations:     []string{"plan kab khatam hoga"},
		AnswerTemplate: "Your {plan_name} plan expires on {expiry_date}",
		Category:       "plan",
	}
)

// scenarioEncoder encodes the two sample entries onto orthogonal axes and
// gives each test query a known similarity.
func scenarioEncoder() *fakeEncoder {
	return &fakeEncoder{
		dims: 4,
		vectors: map[string][]float32{
			balanceText: unit(1, 0, 0, 0),
			planText:    unit(0, 0, 0, 1),

			"kitna data bacha hai":     withScore(4, 0.82, 1),
			"what's the weather today": withScore(4, 0.21, 2),
			"plan kab khatam hoga":     unit(0, 0, 0.3, 0.954),
		},
	}
}

func newScenarioKB(enc *fakeEncoder) (*KnowledgeBase, error) {
	kb, err := NewKnowledgeBase(enc, vectordb.BuildFlat, KnowledgeBaseConfig{}, nil)
	if err != nil {
		return nil, err
	}
	if _, err := kb.Rebuild(context.Background(), []entities.KnowledgeEntry{balanceEntry, planEntry}); err != nil {
		return nil, err
	}
	return kb, nil
}

var errBoom = errors.New("boom")
