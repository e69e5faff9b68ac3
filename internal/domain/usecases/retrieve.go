package usecases

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/vecmath"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// Retriever turns a query into a HIT/MISS decision against the serving
// Store. It never renders and never calls the fallback.
type Retriever struct {
	kb      *KnowledgeBase
	encoder ports.Encoder
	log     logger.ILogger
}

// NewRetriever creates a Retriever. encoder may wrap the knowledge base's
// encoder (for caching) but must produce the same vectors; nil uses the
// knowledge base's encoder directly.
func NewRetriever(kb *KnowledgeBase, encoder ports.Encoder, log logger.ILogger) *Retriever {
	if encoder == nil {
		encoder = kb.Encoder()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Retriever{kb: kb, encoder: encoder, log: log}
}

// ValidateThreshold reports whether t is a usable similarity threshold.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold %v outside [0, 1]", entities.ErrInvalidConfig, t)
	}
	return nil
}

// Retrieve encodes query, finds the single best entry and compares its
// score with threshold. Encoder failures are returned wrapped in
// ErrEncodingUnavailable together with a MISS outcome; they are not retried.
func (r *Retriever) Retrieve(ctx context.Context, query string, threshold float64) (entities.QueryOutcome, error) {
	return r.retrieve(ctx, r.kb.Current(), query, threshold)
}

func (r *Retriever) retrieve(ctx context.Context, store *Store, query string, threshold float64) (entities.QueryOutcome, error) {
	start := time.Now()
	outcome := entities.QueryOutcome{Decision: entities.DecisionMiss}

	if err := ValidateThreshold(threshold); err != nil {
		return outcome, err
	}

	vec, err := r.encodeQuery(ctx, store, query)
	if err != nil {
		outcome.Reason = entities.ReasonEncodingUnavailable
		outcome.Latency = time.Since(start)
		return outcome, err
	}

	matches := store.Search(vec, 1)
	outcome.Latency = time.Since(start)
	if len(matches) == 0 {
		outcome.Reason = entities.ReasonEmptyIndex
		return outcome, nil
	}

	best := matches[0]
	outcome.Score = best.Score
	outcome.EntryID = best.EntryID
	if entry, ok := store.Entry(best.EntryID); ok {
		outcome.Question = entry.Question
		outcome.Category = entry.Category
	}

	if best.Score < threshold {
		outcome.Reason = entities.ReasonBelowThreshold
		return outcome, nil
	}
	outcome.Decision = entities.DecisionHit
	return outcome, nil
}

// Search returns up to k entries scoring at least threshold, best first.
func (r *Retriever) Search(ctx context.Context, query string, k int, threshold float64) ([]entities.SearchResult, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	store := r.kb.Current()

	vec, err := r.encodeQuery(ctx, store, query)
	if err != nil {
		return nil, err
	}

	var results []entities.SearchResult
	for _, m := range store.Search(vec, k) {
		if m.Score < threshold {
			break
		}
		entry, _ := store.Entry(m.EntryID)
		results = append(results, entities.SearchResult{
			EntryID:        m.EntryID,
			Question:       entry.Question,
			Category:       entry.Category,
			AnswerTemplate: entry.AnswerTemplate,
			Score:          m.Score,
		})
	}
	return results, nil
}

func (r *Retriever) encodeQuery(ctx context.Context, store *Store, query string) ([]float32, error) {
	raw, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrEncodingUnavailable, err)
	}
	if dim := store.Dimension(); dim > 0 && len(raw) != dim {
		return nil, fmt.Errorf("%w: %w: query has %d dims, index has %d",
			entities.ErrEncodingUnavailable, entities.ErrDimensionMismatch, len(raw), dim)
	}
	vec, err := vecmath.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrEncodingUnavailable, err)
	}
	return vec, nil
}
