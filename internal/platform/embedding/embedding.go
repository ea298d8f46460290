package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

// Provider turns texts into vectors. The result is index-aligned with texts;
// an entry may be nil when the provider produced nothing for that text.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

var ErrMissingAPIKey = errors.New("EMBEDDING_API_KEY (or OPENAI_API_KEY) is required")

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:   envutil.String("EMBEDDING_BASE_URL", ""),
		APIKey:    envutil.String("EMBEDDING_API_KEY", envutil.String("OPENAI_API_KEY", "")),
		Model:     envutil.String("EMBEDDING_MODEL", "text-embedding-3-small"),
		BatchSize: envutil.Int("EMBEDDING_BATCH_SIZE", 128),
	}
	// Local OpenAI-compatible servers accept any token.
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return cfg, ErrMissingAPIKey
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	return cfg, nil
}

// OpenAI is a Provider backed by an OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	log      *logger.Logger
	embedder embeddings.Embedder
	model    string
}

func NewOpenAI(log *logger.Logger, cfg Config) (*OpenAI, error) {
	if log == nil {
		log = logger.NewNop()
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(
		client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	e := &OpenAI{log: log.With("service", "EmbeddingProvider"), embedder: embedder, model: cfg.Model}
	e.log.Info("Embedding provider initialized", "model", cfg.Model, "base_url", cfg.BaseURL, "batch_size", cfg.BatchSize)
	return e, nil
}

func (e *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	// The API rejects empty inputs; keep them out of the request and leave a nil slot.
	idx := make([]int, 0, len(texts))
	batch := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	out := make([][]float32, len(texts))
	if len(batch) == 0 {
		return out, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, batch)
	if err != nil {
		e.log.Error("Embedding request failed", "model", e.model, "count", len(batch), "error", err)
		return nil, err
	}
	for j, v := range vecs {
		if j < len(idx) {
			out[idx[j]] = v
		}
	}
	return out, nil
}
