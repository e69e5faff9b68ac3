package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

func TestModelFolderName(t *testing.T) {
	assert.Equal(t, "sentence-transformers_all-MiniLM-L6-v2", modelFolderName("sentence-transformers/all-MiniLM-L6-v2"))
	assert.Equal(t, "local", modelFolderName("local"))
}

// newStubHugot builds an encoder around a fake pipeline so batching and
// dimension checks can be tested without downloading a model.
func newStubHugot(dims int, run func([]string) ([][]float32, error)) *HugotEncoder {
	return &HugotEncoder{model: "stub", dims: dims, run: run, log: logger.NewNop()}
}

func TestHugotEncoder_EncodeBatch(t *testing.T) {
	enc := newStubHugot(2, func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), 1}
		}
		return out, nil
	})

	vecs, err := enc.EncodeBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)
	assert.Equal(t, "hugot/stub", enc.Identifier())
	assert.NoError(t, enc.Close())
}

func TestHugotEncoder_Errors(t *testing.T) {
	ctx := context.Background()

	failing := newStubHugot(2, func([]string) ([][]float32, error) { return nil, errors.New("onnx exploded") })
	_, err := failing.Encode(ctx, "x")
	assert.ErrorContains(t, err, "onnx exploded")

	wrongDims := newStubHugot(3, func([]string) ([][]float32, error) { return [][]float32{{1, 2}}, nil })
	_, err = wrongDims.Encode(ctx, "x")
	assert.ErrorContains(t, err, "want 3")

	short := newStubHugot(2, func([]string) ([][]float32, error) { return nil, nil })
	_, err = short.EncodeBatch(ctx, []string{"a"})
	assert.Error(t, err)
}
