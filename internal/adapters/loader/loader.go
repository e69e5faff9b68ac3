// Package loader reads authored FAQ files into knowledge entries.
package loader

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/template"
)

// rawEntry accepts string or numeric ids and the "faqs" wrapper used by
// some exports.
type rawEntry struct {
	ID         any      `json:"id" yaml:"id"`
	Question   string   `json:"question" yaml:"question"`
	Variations []string `json:"variations" yaml:"variations"`
	Answer     string   `json:"answer" yaml:"answer"`
	Category   string   `json:"category" yaml:"category"`
}

type rawFile struct {
	FAQs []rawEntry `json:"faqs" yaml:"faqs"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a ULID; monotonic entropy keeps ids ascending in the order
// they were assigned within the same millisecond.
func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// JSONLoader loads FAQ files written as JSON.
type JSONLoader struct{}

// NewJSONLoader creates a new JSON FAQ loader.
func NewJSONLoader() *JSONLoader {
	return &JSONLoader{}
}

// Load reads a JSON FAQ file: either a top-level array or {"faqs": [...]}.
func (l *JSONLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}

	var raws []rawEntry
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped rawFile
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
		}
		raws = wrapped.FAQs
	} else if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return toEntries(raws)
}

// SupportedExtensions returns file extensions this loader handles.
func (l *JSONLoader) SupportedExtensions() []string {
	return []string{".json"}
}

// YAMLLoader loads FAQ files written as YAML.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML FAQ loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// Load reads a YAML FAQ file: either a top-level sequence or a "faqs" key.
func (l *YAMLLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}

	var raws []rawEntry
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
		var wrapped rawFile
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
		}
		raws = wrapped.FAQs
	} else if err := node.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return toEntries(raws)
}

// SupportedExtensions returns file extensions this loader handles.
func (l *YAMLLoader) SupportedExtensions() []string {
	return []string{".yaml", ".yml"}
}

// MultiLoader combines multiple loaders.
type MultiLoader struct {
	loaders map[string]ports.EntrySource
}

var _ ports.EntrySource = (*MultiLoader)(nil)

// NewMultiLoader creates a loader that handles JSON and YAML FAQ files.
func NewMultiLoader() *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.EntrySource)}
	for _, l := range []ports.EntrySource{NewJSONLoader(), NewYAMLLoader()} {
		for _, ext := range l.SupportedExtensions() {
			m.loaders[ext] = l
		}
	}
	return m
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported FAQ file type %q", entities.ErrInvalidEntry, ext)
	}
	return loader.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading FAQ file: %w", err)
	}
	return data, nil
}

// toEntries normalizes whitespace, assigns missing ids and checks that
// every entry is servable. Errors carry the 1-based position in the file.
func toEntries(raws []rawEntry) ([]entities.KnowledgeEntry, error) {
	entries := make([]entities.KnowledgeEntry, 0, len(raws))
	seen := make(map[string]int, len(raws))

	for i, r := range raws {
		e := entities.KnowledgeEntry{
			Question:       strings.TrimSpace(r.Question),
			AnswerTemplate: r.Answer,
			Category:       strings.TrimSpace(r.Category),
		}
		for _, v := range r.Variations {
			if v = strings.TrimSpace(v); v != "" {
				e.Variations = append(e.Variations, v)
			}
		}

		if r.ID != nil {
			e.ID = strings.TrimSpace(template.FormatValue(r.ID))
		}
		if e.ID == "" {
			e.ID = newID()
		}

		if e.Question == "" {
			return nil, fmt.Errorf("%w: entry %d has no question", entities.ErrInvalidEntry, i+1)
		}
		if prev, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: entry %d reuses id %q from entry %d", entities.ErrInvalidEntry, i+1, e.ID, prev)
		}
		seen[e.ID] = i + 1

		entries = append(entries, e)
	}
	return entries, nil
}
