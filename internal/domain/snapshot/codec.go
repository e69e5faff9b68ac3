// Package snapshot serializes knowledge-base snapshots to an opaque blob.
//
// The blob is a JSON envelope. Vectors are stored as base64 of their
// little-endian float32 bit patterns, so a restored snapshot is bit-for-bit
// identical to the one persisted.
package snapshot

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/vecmath"
)

const (
	formatName    = "faqroute.snapshot"
	formatVersion = 1
)

type envelope struct {
	Format    string          `json:"format"`
	Version   int             `json:"version"`
	EncoderID string          `json:"encoder,omitempty"`
	Dimension int             `json:"dimension"`
	BuiltAt   time.Time       `json:"built_at"`
	Entries   []entryJSON     `json:"entries"`
	Vectors   []vectorRecJSON `json:"vectors"`
}

type entryJSON struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	Variations     []string `json:"variations,omitempty"`
	AnswerTemplate string   `json:"answer_template"`
	Category       string   `json:"category,omitempty"`
}

type vectorRecJSON struct {
	EntryID string `json:"entry_id"`
	Data    string `json:"data"`
}

// Marshal encodes snap into a blob.
func Marshal(snap *entities.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", entities.ErrIncompatibleSnapshot)
	}
	env := envelope{
		Format:    formatName,
		Version:   formatVersion,
		EncoderID: snap.EncoderID,
		Dimension: snap.Dimension,
		BuiltAt:   snap.BuiltAt.UTC(),
		Entries:   make([]entryJSON, len(snap.Entries)),
		Vectors:   make([]vectorRecJSON, len(snap.Records)),
	}
	for i, e := range snap.Entries {
		env.Entries[i] = entryJSON{
			ID:             e.ID,
			Question:       e.Question,
			Variations:     e.Variations,
			AnswerTemplate: e.AnswerTemplate,
			Category:       e.Category,
		}
	}
	for i, r := range snap.Records {
		env.Vectors[i] = vectorRecJSON{EntryID: r.EntryID, Data: base64.StdEncoding.EncodeToString(EncodeVector(r.Vector))}
	}
	return json.Marshal(env)
}

// Unmarshal decodes a blob and checks its internal consistency.
// Placeholders are not restored here; the knowledge base recomputes them.
func Unmarshal(blob []byte) (*entities.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding blob: %v", entities.ErrIncompatibleSnapshot, err)
	}
	if env.Format != formatName || env.Version != formatVersion {
		return nil, fmt.Errorf("%w: format %q version %d", entities.ErrIncompatibleSnapshot, env.Format, env.Version)
	}

	snap := &entities.Snapshot{
		EncoderID: env.EncoderID,
		Dimension: env.Dimension,
		BuiltAt:   env.BuiltAt,
		Entries:   make([]entities.KnowledgeEntry, len(env.Entries)),
		Records:   make([]entities.EmbeddingRecord, len(env.Vectors)),
	}
	for i, e := range env.Entries {
		snap.Entries[i] = entities.KnowledgeEntry{
			ID:             e.ID,
			Question:       e.Question,
			Variations:     e.Variations,
			AnswerTemplate: e.AnswerTemplate,
			Category:       e.Category,
		}
	}
	for i, v := range env.Vectors {
		raw, err := base64.StdEncoding.DecodeString(v.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: vector for %s: %v", entities.ErrIncompatibleSnapshot, v.EntryID, err)
		}
		vec, err := DecodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: vector for %s: %v", entities.ErrIncompatibleSnapshot, v.EntryID, err)
		}
		snap.Records[i] = entities.EmbeddingRecord{EntryID: v.EntryID, Vector: vec}
	}

	if err := Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate checks that every entry has exactly one unit vector of the
// snapshot's dimension.
func Validate(snap *entities.Snapshot) error {
	if snap.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", entities.ErrIncompatibleSnapshot, snap.Dimension)
	}
	if len(snap.Entries) != len(snap.Records) {
		return fmt.Errorf("%w: %d entries but %d vectors",
			entities.ErrIncompatibleSnapshot, len(snap.Entries), len(snap.Records))
	}

	known := make(map[string]bool, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.ID == "" || known[e.ID] {
			return fmt.Errorf("%w: missing or duplicate entry id %q", entities.ErrIncompatibleSnapshot, e.ID)
		}
		known[e.ID] = true
	}

	seen := make(map[string]bool, len(snap.Records))
	for _, r := range snap.Records {
		if !known[r.EntryID] || seen[r.EntryID] {
			return fmt.Errorf("%w: vector for unknown or repeated entry %q", entities.ErrIncompatibleSnapshot, r.EntryID)
		}
		seen[r.EntryID] = true
		if len(r.Vector) != snap.Dimension {
			return fmt.Errorf("%w: entry %s has %d dims, want %d",
				entities.ErrIncompatibleSnapshot, r.EntryID, len(r.Vector), snap.Dimension)
		}
		if !vecmath.IsUnit(r.Vector) {
			return fmt.Errorf("%w: entry %s vector is not unit length", entities.ErrIncompatibleSnapshot, r.EntryID)
		}
	}
	return nil
}

// CheckCompatible verifies a snapshot was built by the given encoder.
// An empty encoderID skips the identifier check.
func CheckCompatible(snap *entities.Snapshot, encoderID string, dimension int) error {
	if dimension > 0 && snap.Dimension != dimension {
		return fmt.Errorf("%w: snapshot dimension %d, encoder dimension %d",
			entities.ErrIncompatibleSnapshot, snap.Dimension, dimension)
	}
	if encoderID != "" && snap.EncoderID != "" && snap.EncoderID != encoderID {
		return fmt.Errorf("%w: snapshot encoder %q, live encoder %q",
			entities.ErrIncompatibleSnapshot, snap.EncoderID, encoderID)
	}
	return nil
}

// EncodeVector packs v as little-endian float32 bits.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector byte length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
