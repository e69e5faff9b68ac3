package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// OllamaFallback implements ports.Fallback using the Ollama generate API.
type OllamaFallback struct {
	baseURL string
	model   string
	client  *http.Client
	log     logger.ILogger
}

var _ ports.Fallback = (*OllamaFallback)(nil)

// NewOllamaFallback creates a new Ollama fallback.
func NewOllamaFallback(baseURL, model string, log logger.ILogger) *OllamaFallback {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &OllamaFallback{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: log,
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the Ollama generate API response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate answers query with the user's facts folded into the prompt.
func (a *OllamaFallback) Generate(ctx context.Context, query string, facts entities.Context) (string, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  a.model,
		Prompt: BuildPrompt(query, facts),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	a.log.Debug("fallback", "ollama generated", map[string]interface{}{
		"model":    a.model,
		"duration": time.Since(start).String(),
		"chars":    len(genResp.Response),
	})
	return genResp.Response, nil
}
