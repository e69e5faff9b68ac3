// Package config loads service configuration from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Retrieval RetrievalConfig
	Encoder   EncoderConfig
	Fallback  FallbackConfig
	Storage   StorageConfig
}

type AppConfig struct {
	Addr        string `validate:"required"`
	Environment string `validate:"oneof=development production test"`
	LogFilePath string
	WatchFAQ    bool
}

// RetrievalConfig holds the decision knobs. None of these are hard-coded
// in the core; they are passed in from here.
type RetrievalConfig struct {
	Threshold         float64       `validate:"gte=0,lte=1"`
	TopK              int           `validate:"gte=1,lte=100"`
	QueryTimeout      time.Duration `validate:"gte=0"`
	EncodeConcurrency int           `validate:"gte=1,lte=64"`
}

type EncoderConfig struct {
	Provider  string        `validate:"oneof=ollama hugot hashing"`
	BaseURL   string        `validate:"omitempty,url"`
	Model     string        `validate:"required"`
	Dimension int           `validate:"gte=0"`
	ModelDir  string        // hugot download directory
	CacheTTL  time.Duration `validate:"gte=0"`
}

type FallbackConfig struct {
	Provider string `validate:"oneof=ollama gemini"`
	BaseURL  string `validate:"omitempty,url"`
	Model    string `validate:"required"`
	APIKey   string `validate:"required_if=Provider gemini"`
}

type StorageConfig struct {
	FAQFile      string `validate:"required"`
	SnapshotPath string `validate:"required"`
	// Backend selects where snapshots persist: a single blob file or SQLite.
	Backend string `validate:"oneof=file sqlite"`
}

// Load reads .env (if present) and the environment, applies defaults and
// overrides in order, then validates the result.
func Load(overrides ...func(*Config)) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	cfg := FromEnv()
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables without validating.
func FromEnv() *Config {
	encoderProvider := getEnv("EMBED_PROVIDER", "hashing")
	fallbackProvider := getEnv("LLM_PROVIDER", "ollama")
	return &Config{
		App: AppConfig{
			Addr:        getEnv("APP_ADDR", ":8080"),
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", ""),
			WatchFAQ:    getEnvAsBool("WATCH_FAQ_FILE", true),
		},
		Retrieval: RetrievalConfig{
			Threshold:         getEnvAsFloat("MATCH_THRESHOLD", 0.65),
			TopK:              getEnvAsInt("TOP_K", 1),
			QueryTimeout:      getEnvAsDuration("QUERY_TIMEOUT", 30*time.Second),
			EncodeConcurrency: getEnvAsInt("ENCODE_CONCURRENCY", 4),
		},
		Encoder: EncoderConfig{
			Provider:  encoderProvider,
			BaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:     getEnv("EMBED_MODEL", DefaultEncoderModel(encoderProvider)),
			Dimension: getEnvAsInt("EMBED_DIM", 0),
			ModelDir:  getEnv("EMBED_MODEL_DIR", "./models"),
			CacheTTL:  getEnvAsDuration("EMBED_CACHE_TTL", 10*time.Minute),
		},
		Fallback: FallbackConfig{
			Provider: fallbackProvider,
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Model:    getEnv("LLM_MODEL", DefaultFallbackModel(fallbackProvider)),
			APIKey:   getEnv("GEMINI_API_KEY", ""),
		},
		Storage: StorageConfig{
			FAQFile:      getEnv("FAQ_FILE", "faqs.json"),
			SnapshotPath: getEnv("SNAPSHOT_PATH", "./data/faq_index.json"),
			Backend:      getEnv("SNAPSHOT_BACKEND", "file"),
		},
	}
}

var validate = validator.New()

// Validate checks every field against its tag rules. All failures are
// reported together.
func (c *Config) Validate() error {
	var errs []string
	for _, section := range []interface{}{c.App, c.Retrieval, c.Encoder, c.Fallback, c.Storage} {
		if err := validate.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = append(errs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
				}
				continue
			}
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", entities.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction reports whether logs should be JSON only.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// DefaultEncoderModel is the model used when EMBED_MODEL is unset.
func DefaultEncoderModel(provider string) string {
	switch provider {
	case "ollama":
		return "nomic-embed-text"
	case "hugot":
		return "sentence-transformers/all-MiniLM-L6-v2"
	default:
		return "ngram-3"
	}
}

// DefaultFallbackModel is the model used when LLM_MODEL is unset.
func DefaultFallbackModel(provider string) string {
	if provider == "gemini" {
		return "gemini-2.5-flash"
	}
	return "llama3.2"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
