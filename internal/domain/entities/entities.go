// Package entities contains core business entities.
// These are pure domain objects: knowledge entries, their embeddings and the
// outcome of a single routing decision. No storage or transport knowledge here.
package entities

import "time"

// KnowledgeEntry is one retrievable, pre-authored answer.
type KnowledgeEntry struct {
	ID             string   `json:"id" yaml:"id"`
	Question       string   `json:"question" yaml:"question"`
	Variations     []string `json:"variations,omitempty" yaml:"variations,omitempty"`
	AnswerTemplate string   `json:"answer" yaml:"answer"`
	Category       string   `json:"category,omitempty" yaml:"category,omitempty"`

	// Placeholders is filled at ingestion from AnswerTemplate and never
	// changes for the lifetime of a loaded snapshot.
	Placeholders []string `json:"placeholders,omitempty" yaml:"-"`
}

// RepresentativeText is the text sent to the encoder for this entry:
// the primary question followed by every variation.
func (e KnowledgeEntry) RepresentativeText() string {
	text := e.Question
	for _, v := range e.Variations {
		text += " " + v
	}
	return text
}

// EmbeddingRecord is the derived, unit-length vector of one entry.
type EmbeddingRecord struct {
	EntryID string
	Vector  []float32
}

// Snapshot is the persistable state of a knowledge base: entries plus
// aligned vectors and the encoder that produced them.
type Snapshot struct {
	EncoderID string
	Dimension int
	Entries   []KnowledgeEntry
	Records   []EmbeddingRecord
	BuiltAt   time.Time
}

// Match is one search hit from an index.
type Match struct {
	EntryID string  `json:"entry_id"`
	Score   float64 `json:"score"`
}

// Context carries per-request placeholder values (user facts).
type Context map[string]any

// Decision is the routing verdict for a query.
type Decision string

const (
	DecisionHit  Decision = "HIT"
	DecisionMiss Decision = "MISS"
)

// Source says who produced the answer text.
type Source string

const (
	SourceTemplate Source = "template"
	SourceFallback Source = "fallback"
)

// MissReason explains why a query was not served from a template.
type MissReason string

const (
	ReasonNone                MissReason = ""
	ReasonBelowThreshold      MissReason = "below_threshold"
	ReasonEmptyIndex          MissReason = "empty_index"
	ReasonEncodingUnavailable MissReason = "encoding_unavailable"
	ReasonMissingContextKey   MissReason = "missing_context_key"
)

// QueryOutcome is the result of one retrieval or routing call.
type QueryOutcome struct {
	Decision Decision      `json:"decision"`
	EntryID  string        `json:"entry_id,omitempty"`
	Question string        `json:"question,omitempty"`
	Category string        `json:"category,omitempty"`
	Score    float64       `json:"score"`
	Answer   string        `json:"answer,omitempty"`
	Source   Source        `json:"source,omitempty"`
	Reason   MissReason    `json:"reason,omitempty"`
	Latency  time.Duration `json:"latency_ns"`
}

// Hit reports whether the outcome was served from a template.
func (o QueryOutcome) Hit() bool {
	return o.Decision == DecisionHit
}

// SearchResult is one entry returned by a top-k search.
type SearchResult struct {
	EntryID        string  `json:"entry_id"`
	Question       string  `json:"question"`
	Category       string  `json:"category,omitempty"`
	AnswerTemplate string  `json:"answer_template"`
	Score          float64 `json:"score"`
}
