package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xcro3dile/faqroute/internal/adapters/embedding"
	"github.com/0xcro3dile/faqroute/internal/adapters/llm"
	"github.com/0xcro3dile/faqroute/internal/adapters/loader"
	"github.com/0xcro3dile/faqroute/internal/adapters/vectordb"
	"github.com/0xcro3dile/faqroute/internal/config"
	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/usecases"
	"github.com/0xcro3dile/faqroute/internal/metrics"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	log       logger.ILogger
	kb        *usecases.KnowledgeBase
	retriever *usecases.Retriever
	counters  *metrics.Counters
	prom      *metrics.Prometheus
	repo      ports.SnapshotRepository
	source    *loader.MultiLoader

	closers []func() error
}

func newLogger(cfg *config.Config, serving bool) logger.ILogger {
	if !serving && !verbose {
		return logger.NewNop()
	}
	return logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
}

// newApp wires the encoder, knowledge base and retriever. Nothing is loaded
// until open or build is called.
func newApp(cfg *config.Config, log logger.ILogger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		counters: metrics.NewCounters(),
		prom:     metrics.NewPrometheus(""),
		source:   loader.NewMultiLoader(),
	}

	enc, closeEnc, err := newEncoder(cfg.Encoder, log)
	if err != nil {
		return nil, err
	}
	if closeEnc != nil {
		a.closers = append(a.closers, closeEnc)
	}

	a.kb, err = usecases.NewKnowledgeBase(enc, vectordb.BuildFlat, usecases.KnowledgeBaseConfig{
		Dimension:         cfg.Encoder.Dimension,
		EncodeConcurrency: cfg.Retrieval.EncodeConcurrency,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.kb.OnSwap(func(s *usecases.Store) { a.prom.SetEntries(s.Len()) })

	// Only queries go through the cache; builds always hit the model.
	a.retriever = usecases.NewRetriever(a.kb, embedding.NewCachedEncoder(enc, cfg.Encoder.CacheTTL), log)

	a.repo, err = newRepository(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.repo.Close)
	return a, nil
}

func newEncoder(cfg config.EncoderConfig, log logger.ILogger) (ports.Encoder, func() error, error) {
	switch cfg.Provider {
	case "ollama":
		return embedding.NewOllamaEncoder(cfg.BaseURL, cfg.Model, cfg.Dimension, log), nil, nil
	case "hugot":
		enc, err := embedding.NewHugotEncoder(cfg.Model, cfg.ModelDir, log)
		if err != nil {
			return nil, nil, err
		}
		return enc, enc.Close, nil
	case "hashing", "":
		return embedding.NewHashingEncoder(cfg.Model, cfg.Dimension), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown encoder provider %q", entities.ErrInvalidConfig, cfg.Provider)
	}
}

func newFallback(cfg config.FallbackConfig, log logger.ILogger) (ports.Fallback, error) {
	switch cfg.Provider {
	case "ollama", "":
		return llm.NewOllamaFallback(cfg.BaseURL, cfg.Model, log), nil
	case "gemini":
		return llm.NewGeminiFallback(cfg.BaseURL, cfg.APIKey, cfg.Model, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown fallback provider %q", entities.ErrInvalidConfig, cfg.Provider)
	}
}

func newRepository(cfg config.StorageConfig) (ports.SnapshotRepository, error) {
	switch cfg.Backend {
	case "sqlite":
		return vectordb.NewSQLiteRepository(cfg.SnapshotPath)
	case "file", "":
		return vectordb.NewFileRepository(cfg.SnapshotPath), nil
	default:
		return nil, fmt.Errorf("%w: unknown snapshot backend %q", entities.ErrInvalidConfig, cfg.Backend)
	}
}

// open serves the persisted snapshot, building from the FAQ file when it is
// missing or was made by a different encoder.
func (a *app) open(ctx context.Context) (*usecases.Store, error) {
	return a.kb.LoadOrBuild(ctx, a.repo, a.loadEntries)
}

// build always re-reads the FAQ file and replaces the stored snapshot.
func (a *app) build(ctx context.Context) (*usecases.Store, error) {
	entries, err := a.loadEntries(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.kb.Rebuild(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err := a.kb.Save(ctx, a.repo); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) loadEntries(ctx context.Context) ([]entities.KnowledgeEntry, error) {
	return a.source.Load(ctx, a.cfg.Storage.FAQFile)
}

// router builds the fallback and the router on top of the retriever.
// Outcomes go to both the JSON counters and Prometheus.
func (a *app) router() (*usecases.Router, error) {
	fb, err := newFallback(a.cfg.Fallback, a.log)
	if err != nil {
		return nil, err
	}
	return usecases.NewRouter(a.retriever, fb, metrics.Tee{a.counters, a.prom}, usecases.RouterConfig{
		Threshold:    a.cfg.Retrieval.Threshold,
		QueryTimeout: a.cfg.Retrieval.QueryTimeout,
	}, a.log)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.log.Sync()
	return errors.Join(errs...)
}
