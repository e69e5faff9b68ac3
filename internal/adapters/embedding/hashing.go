package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
)

const (
	defaultHashingDims = 512
	defaultNgram       = 3
)

// HashingEncoder is an offline encoder that hashes word tokens and
// character n-grams into a fixed number of buckets (feature hashing).
// It needs no model download, which makes it the default for tests and
// air-gapped setups. Similarity is lexical, not semantic.
type HashingEncoder struct {
	dims  int
	ngram int
}

var _ ports.Encoder = (*HashingEncoder)(nil)

// NewHashingEncoder parses model names of the form "ngram-N". Unknown
// names fall back to trigrams.
func NewHashingEncoder(model string, dims int) *HashingEncoder {
	if dims <= 0 {
		dims = defaultHashingDims
	}
	n := defaultNgram
	if strings.HasPrefix(model, "ngram-") {
		if v, err := strconv.Atoi(strings.TrimPrefix(model, "ngram-")); err == nil && v > 0 {
			n = v
		}
	}
	return &HashingEncoder{dims: dims, ngram: n}
}

func (e *HashingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dims)
	for _, word := range tokenize(text) {
		e.add(vec, "w:"+word, 1)

		padded := []rune("#" + word + "#")
		if len(padded) <= e.ngram {
			e.add(vec, "g:"+string(padded), 0.5)
			continue
		}
		for i := 0; i+e.ngram <= len(padded); i++ {
			e.add(vec, "g:"+string(padded[i:i+e.ngram]), 0.5)
		}
	}
	return vec, nil
}

func (e *HashingEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Encode(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashingEncoder) Dimension() int { return e.dims }

func (e *HashingEncoder) Identifier() string {
	return fmt.Sprintf("hashing/ngram-%d/%d", e.ngram, e.dims)
}

// add uses the low bits for the bucket and bit 63 for the sign, so
// colliding features tend to cancel instead of piling up.
func (e *HashingEncoder) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(len(vec)))
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
