package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []*geminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []*geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content"`
	FinishReason string         `json:"finishReason"`
}

type geminiResponse struct {
	Candidates []*geminiCandidate `json:"candidates"`
}

// GeminiFallback implements ports.Fallback with the Gemini REST API.
type GeminiFallback struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	log     logger.ILogger
}

var _ ports.Fallback = (*GeminiFallback)(nil)

// NewGeminiFallback creates a Gemini fallback. baseURL is only overridden
// in tests.
func NewGeminiFallback(baseURL, apiKey, model string, log logger.ILogger) *GeminiFallback {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &GeminiFallback{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
}

func (g *GeminiFallback) Generate(ctx context.Context, query string, facts entities.Context) (string, error) {
	payload := geminiRequest{
		Contents: []*geminiContent{{
			Parts: []*geminiPart{{Text: BuildPrompt(query, facts)}},
			Role:  "user",
		}},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadJSON))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Gemini: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini returned status %d: %s", res.StatusCode, string(resBody))
	}

	var geminiRes geminiResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(geminiRes.Candidates) == 0 || geminiRes.Candidates[0].Content == nil {
		return "", fmt.Errorf("Gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range geminiRes.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("Gemini returned an empty answer (finish reason %q)", geminiRes.Candidates[0].FinishReason)
	}

	g.log.Debug("fallback", "gemini generated", map[string]interface{}{"model": g.model, "chars": sb.Len()})
	return sb.String(), nil
}
