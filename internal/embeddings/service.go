// Package embeddings provides embedding generation via langchaingo,
// talking to an OpenAI-compatible endpoint (TEI exposes one, as does
// OpenAI itself).
package embeddings

import (
	"context"
	"fmt"
	"os"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// defaultRequestsPerSecond bounds outbound calls to the remote
// embedding endpoint when Config.RequestsPerSecond is left at zero: a
// shared TEI/OpenAI-compatible endpoint has a real request budget, and
// a burst of concurrent re-embed or auto-link similarity lookups
// shouldn't exceed it.
const defaultRequestsPerSecond = 10

// Config holds configuration for the remote embedding service.
type Config struct {
	// BaseURL is the base URL for the embedding API.
	// For TEI: http://localhost:8080/v1
	// For OpenAI: https://api.openai.com/v1
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// APIKey is the API key (required for OpenAI, optional for TEI).
	APIKey string

	// Dimension is the expected vector length. EmbedDocuments/EmbedQuery
	// reject any response whose vectors don't match this exactly.
	Dimension int

	// RequestsPerSecond caps outbound requests to BaseURL. <= 0 uses
	// defaultRequestsPerSecond.
	RequestsPerSecond float64
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	baseURL := os.Getenv("FORGETFUL_EMBEDDING_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080/v1"
	}

	model := os.Getenv("FORGETFUL_EMBEDDING_MODEL")
	if model == "" {
		model = "BAAI/bge-small-en-v1.5"
	}

	return Config{
		BaseURL:   baseURL,
		Model:     model,
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		Dimension: detectDimensionFromModel(model),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service embeds text against a remote OpenAI-compatible endpoint via
// langchaingo. It implements Adapter.
type Service struct {
	embedder lcembeddings.Embedder
	config   Config
	metrics  *Metrics
	limiter  *rate.Limiter
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo's OpenAI client requires a non-empty token even
		// against a TEI endpoint that ignores it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	return &Service{
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(zap.NewNop()),
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int { return s.config.Dimension }

// Close is a no-op: the service holds no resources beyond an http.Client
// owned internally by the langchaingo client.
func (s *Service) Close() error { return nil }

// EmbedDocuments generates embeddings for multiple texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var genErr error
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}
	if genErr = s.limiter.Wait(ctx); genErr != nil {
		return nil, genErr
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	if genErr = validateDimension(vectors, s.config.Dimension); genErr != nil {
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var genErr error
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}
	if genErr = s.limiter.Wait(ctx); genErr != nil {
		return nil, genErr
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	if genErr = validateDimension([][]float32{vector}, s.config.Dimension); genErr != nil {
		return nil, genErr
	}
	return vector, nil
}
