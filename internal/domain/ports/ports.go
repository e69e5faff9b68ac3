// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
)

// Encoder turns text into a fixed-dimension vector.
// Implementations must be deterministic for identical input.
type Encoder interface {
	// Encode generates a vector for a single text.
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch generates vectors for multiple texts, aligned by position.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector this encoder returns.
	Dimension() int

	// Identifier names the model, so persisted snapshots can be checked
	// for compatibility before serving.
	Identifier() string
}

// Fallback generates a free-text answer when no template matches.
// It is significantly more expensive than retrieval.
type Fallback interface {
	Generate(ctx context.Context, query string, facts entities.Context) (string, error)
}

// Index is an immutable nearest-neighbour structure over unit vectors.
// Search is safe for concurrent use.
type Index interface {
	// Search returns the k best matches by inner product, descending,
	// ties broken by ascending entry ID. An empty index returns nil.
	Search(query []float32, k int) []entities.Match

	Len() int
	Dimension() int
}

// IndexBuilder builds a fresh Index from a complete set of records.
type IndexBuilder func(dimension int, records []entities.EmbeddingRecord) (Index, error)

// SnapshotRepository persists whole knowledge-base snapshots.
type SnapshotRepository interface {
	// Save replaces whatever snapshot was stored before.
	Save(ctx context.Context, snap *entities.Snapshot) error

	// Load returns the stored snapshot, or entities.ErrSnapshotNotFound.
	Load(ctx context.Context) (*entities.Snapshot, error)

	Close() error
}

// EntrySource reads knowledge entries from authored FAQ files.
type EntrySource interface {
	// Load reads and validates entries from the given path.
	Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error)

	// SupportedExtensions returns file extensions this source handles.
	SupportedExtensions() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// Recorder observes routing outcomes. Implementations must be safe for
// concurrent use; fallbackFailed marks a MISS whose fallback also failed.
type Recorder interface {
	Record(outcome entities.QueryOutcome, fallbackFailed bool)
}
