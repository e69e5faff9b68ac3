package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// HugotEncoder runs a sentence-transformers model in-process through
// hugot's pure Go backend.
type HugotEncoder struct {
	model   string
	dims    int
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)

	// The Go backend pipeline is not safe for concurrent RunPipeline calls.
	mu  sync.Mutex
	log logger.ILogger
}

var _ ports.Encoder = (*HugotEncoder)(nil)

// NewHugotEncoder prepares the model under modelDir (downloading it on first
// use) and probes it once to learn the output dimension.
func NewHugotEncoder(model, modelDir string, log logger.ILogger) (*HugotEncoder, error) {
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if log == nil {
		log = logger.NewNop()
	}

	modelPath, err := prepareModel(model, modelDir, log)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "faqroute-encoder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("creating feature pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("creating feature pipeline: %w", err)
	}

	e := &HugotEncoder{
		model:   model,
		session: session,
		log:     log,
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}

	probe, err := e.Encode(context.Background(), "dimension probe")
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("probing model: %w", err)
	}
	e.dims = len(probe)

	log.Info("embedding", "hugot encoder ready", map[string]interface{}{"model": model, "dims": e.dims})
	return e, nil
}

func (e *HugotEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *HugotEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	embeddings, err := e.run(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("running feature pipeline: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("pipeline returned %d embeddings for %d texts", len(embeddings), len(texts))
	}
	if e.dims > 0 {
		for i, v := range embeddings {
			if len(v) != e.dims {
				return nil, fmt.Errorf("embedding %d has %d dims, want %d", i, len(v), e.dims)
			}
		}
	}
	return embeddings, nil
}

func (e *HugotEncoder) Dimension() int { return e.dims }

func (e *HugotEncoder) Identifier() string { return "hugot/" + e.model }

// Close releases the hugot session.
func (e *HugotEncoder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

// prepareModel downloads the model if it doesn't exist and returns its path.
func prepareModel(model, modelDir string, log logger.ILogger) (string, error) {
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath := filepath.Join(modelDir, modelFolderName(model))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return "", fmt.Errorf("creating model directory: %w", err)
		}
		log.Info("embedding", "downloading model", map[string]interface{}{"model": model, "dir": modelDir})

		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(model, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("downloading model: %w", err)
		}
		modelPath = downloadedPath
	}
	return modelPath, nil
}

// modelFolderName mirrors hugot's download layout: "org/name" is stored
// as "org_name".
func modelFolderName(model string) string {
	return strings.ReplaceAll(model, "/", "_")
}
