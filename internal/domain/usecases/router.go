package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// RouterConfig holds the decision knobs supplied by configuration.
type RouterConfig struct {
	// Threshold is the default minimum similarity for a HIT.
	Threshold float64
	// QueryTimeout bounds a whole Answer call. Zero means no limit beyond
	// the caller's context.
	QueryTimeout time.Duration
}

// Router is the single entry point: retrieve, render on HIT, fall back on
// MISS, record exactly one outcome per call.
type Router struct {
	retriever *Retriever
	fallback  ports.Fallback
	recorder  ports.Recorder
	log       logger.ILogger

	threshold float64
	timeout   time.Duration
}

// NewRouter validates cfg and wires the router.
func NewRouter(retriever *Retriever, fallback ports.Fallback, recorder ports.Recorder, cfg RouterConfig, log logger.ILogger) (*Router, error) {
	if retriever == nil || fallback == nil || recorder == nil {
		return nil, fmt.Errorf("%w: router needs a retriever, a fallback and a recorder", entities.ErrInvalidConfig)
	}
	if err := ValidateThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout < 0 {
		return nil, fmt.Errorf("%w: negative query timeout", entities.ErrInvalidConfig)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{
		retriever: retriever,
		fallback:  fallback,
		recorder:  recorder,
		log:       log,
		threshold: cfg.Threshold,
		timeout:   cfg.QueryTimeout,
	}, nil
}

// Threshold returns the configured default threshold.
func (r *Router) Threshold() float64 { return r.threshold }

// Answer routes one query. The outcome always carries the decision; the
// only error it returns (once the threshold is valid) wraps
// ErrFallbackFailure, and additionally ErrTimeout when the deadline passed.
// An out-of-range threshold is rejected with ErrInvalidConfig before any
// work or accounting happens.
func (r *Router) Answer(ctx context.Context, query string, facts entities.Context, threshold float64) (entities.QueryOutcome, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return entities.QueryOutcome{Decision: entities.DecisionMiss}, err
	}

	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// Search and render must see the same Store even if a rebuild swaps
	// in between.
	store := r.retriever.kb.Current()

	outcome, err := r.retriever.retrieve(ctx, store, query, threshold)
	if err != nil {
		r.log.Warn("router", "retrieval failed, using fallback", map[string]interface{}{"error": err.Error()})
	}

	if outcome.Hit() {
		text, rerr := store.Render(outcome.EntryID, facts)
		if rerr == nil {
			outcome.Answer = text
			outcome.Source = entities.SourceTemplate
			return r.finish(start, outcome, nil), nil
		}

		outcome.Decision = entities.DecisionMiss
		outcome.Reason = entities.ReasonMissingContextKey
		if !errors.Is(rerr, entities.ErrMissingContextKey) {
			r.log.Error("router", "render failed", map[string]interface{}{"error": rerr.Error(), "entry_id": outcome.EntryID})
		}
	}

	outcome.Source = entities.SourceFallback
	text, ferr := r.fallback.Generate(ctx, query, facts)
	if ferr != nil {
		return r.finish(start, outcome, ferr), r.fallbackError(ctx, ferr)
	}
	outcome.Answer = text
	return r.finish(start, outcome, nil), nil
}

func (r *Router) fallbackError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", entities.ErrFallbackFailure, entities.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", entities.ErrFallbackFailure, err)
}

func (r *Router) finish(start time.Time, outcome entities.QueryOutcome, fallbackErr error) entities.QueryOutcome {
	outcome.Latency = time.Since(start)
	r.recorder.Record(outcome, fallbackErr != nil)

	details := map[string]interface{}{
		"decision": string(outcome.Decision),
		"score":    outcome.Score,
		"entry_id": outcome.EntryID,
		"category": outcome.Category,
		"source":   string(outcome.Source),
		"latency":  outcome.Latency.String(),
	}
	if outcome.Reason != entities.ReasonNone {
		details["reason"] = string(outcome.Reason)
	}
	if fallbackErr != nil {
		details["error"] = fallbackErr.Error()
		r.log.Error("router", "fallback failed", details)
		return outcome
	}
	r.log.Info("router", "query routed", details)
	return outcome
}
