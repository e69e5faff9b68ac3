package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
)

// CachedEncoder memoizes single-text encodings. Encoders are deterministic,
// so a cached vector is exactly what a fresh call would return.
type CachedEncoder struct {
	inner ports.Encoder
	cache *cache.Cache
}

var _ ports.Encoder = (*CachedEncoder)(nil)

// NewCachedEncoder wraps inner. A non-positive ttl returns inner unwrapped.
func NewCachedEncoder(inner ports.Encoder, ttl time.Duration) ports.Encoder {
	if ttl <= 0 {
		return inner
	}
	return &CachedEncoder{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}
	vec, err := c.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(text, clone(vec))
	return vec, nil
}

// EncodeBatch is used for index builds; entry texts are rarely queried
// verbatim, so results are not cached.
func (c *CachedEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EncodeBatch(ctx, texts)
}

func (c *CachedEncoder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEncoder) Identifier() string { return c.inner.Identifier() }

// Len reports how many query vectors are cached.
func (c *CachedEncoder) Len() int { return c.cache.ItemCount() }

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
