// Package embedding provides encoder adapters implementing ports.Encoder.
// They know about model specifics; the domain layer only sees vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// knownDims lists output sizes of common Ollama embedding models.
var knownDims = map[string]int{
	"nomic-embed-text":  768,
	"all-minilm":        384,
	"mxbai-embed-large": 1024,
}

// OllamaEncoder implements ports.Encoder using the Ollama API.
type OllamaEncoder struct {
	baseURL string
	model   string
	dims    atomic.Int64
	client  *http.Client
	log     logger.ILogger
}

var _ ports.Encoder = (*OllamaEncoder)(nil)

// NewOllamaEncoder creates a new Ollama encoder. A zero dims means "use the
// model's known size, or learn it from the first response".
func NewOllamaEncoder(baseURL, model string, dims int, log logger.ILogger) *OllamaEncoder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dims == 0 {
		dims = knownDims[model]
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &OllamaEncoder{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log,
	}
	e.dims.Store(int64(dims))
	return e
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Encode generates an embedding for a single text.
func (a *OllamaEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{
		Model:  a.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn("embedding", "ollama call failed", map[string]interface{}{"error": err.Error(), "base_url": a.baseURL})
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("Ollama returned an empty embedding")
	}

	if want := a.dims.Load(); want == 0 {
		a.dims.CompareAndSwap(0, int64(len(embedResp.Embedding)))
	} else if int64(len(embedResp.Embedding)) != want {
		return nil, fmt.Errorf("Ollama returned %d dims, want %d", len(embedResp.Embedding), want)
	}

	a.log.Debug("embedding", "ollama embedding", map[string]interface{}{"model": a.model, "dims": len(embedResp.Embedding)})
	return embedResp.Embedding, nil
}

// EncodeBatch generates embeddings for multiple texts.
// Ollama's legacy endpoint takes one prompt, so this is sequential;
// callers fan batches out when they want parallelism.
func (a *OllamaEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := a.Encode(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimension returns the configured or learned vector size.
func (a *OllamaEncoder) Dimension() int {
	return int(a.dims.Load())
}

// Identifier names the backing model.
func (a *OllamaEncoder) Identifier() string {
	return "ollama/" + a.model
}
