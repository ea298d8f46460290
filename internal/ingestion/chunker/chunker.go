// Package chunker splits extracted text into ordered chunks and attaches an
// embedding to each one.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/platform/embedding"
	"github.com/agentcloud/vector-db-proxy/internal/platform/envutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

const (
	StrategySemantic = "semantic"
	StrategyFixed    = "fixed"
)

// Strategy decides chunk boundaries. It may call the embedding provider to do so.
type Strategy interface {
	Name() string
	Split(ctx context.Context, text string) ([]string, error)
}

var (
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
	ErrNoEmbedder      = errors.New("embedding provider not configured")
)

type Config struct {
	Strategy             string
	BufferSize           int
	BreakpointPercentile float64
	ChunkSize            int
	ChunkOverlap         int
}

func ResolveConfigFromEnv() Config {
	cfg := Config{
		Strategy:             strings.ToLower(envutil.String("CHUNKING_STRATEGY", StrategySemantic)),
		BufferSize:           envutil.Int("SEMANTIC_BUFFER_SIZE", 1),
		BreakpointPercentile: envutil.Float("SEMANTIC_BREAKPOINT_PERCENTILE", 95),
		ChunkSize:            envutil.Int("CHUNK_SIZE", 1000),
		ChunkOverlap:         envutil.Int("CHUNK_OVERLAP", 100),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategySemantic
	}
	if c.BufferSize < 0 {
		c.BufferSize = 0
	}
	if c.BreakpointPercentile <= 0 || c.BreakpointPercentile > 100 {
		c.BreakpointPercentile = 95
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 0
	}
	return c
}

// Chunker owns the registered strategies and the provider used to embed chunks.
type Chunker struct {
	log        *logger.Logger
	embedder   embedding.Provider
	strategies map[string]Strategy
	def        string
}

// New registers the semantic and fixed strategies. cfg.Strategy picks the default.
func New(log *logger.Logger, embedder embedding.Provider, cfg Config) *Chunker {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	c := &Chunker{
		log:        log.With("component", "Chunker"),
		embedder:   embedder,
		strategies: map[string]Strategy{},
		def:        cfg.Strategy,
	}
	c.Register(NewSemantic(embedder, cfg.BufferSize, cfg.BreakpointPercentile))
	c.Register(NewFixed(cfg.ChunkSize, cfg.ChunkOverlap))
	return c
}

func (c *Chunker) Register(s Strategy) {
	if s == nil {
		return
	}
	c.strategies[strings.ToLower(s.Name())] = s
}

func (c *Chunker) DefaultStrategy() string { return c.def }

func (c *Chunker) Strategies() []string {
	out := make([]string, 0, len(c.strategies))
	for name := range c.strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Chunk splits text with the named strategy ("" selects the default) and embeds
// every chunk in one batch. Types without an extractor yield no chunks.
// A failed embedding call leaves the chunks without vectors rather than failing.
func (c *Chunker) Chunk(ctx context.Context, ft document.FileType, text string, meta map[string]string, strategy string) ([]document.Chunk, error) {
	if !ft.Extractable() || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	name := strings.ToLower(strings.TrimSpace(strategy))
	if name == "" {
		name = c.def
	}
	s, ok := c.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	parts, err := s.Split(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s split: %w", s.Name(), err)
	}

	chunks := make([]document.Chunk, 0, len(parts))
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, document.NewChunk(len(chunks), p, meta))
		texts = append(texts, p)
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	if c.embedder == nil {
		c.log.Warn("No embedding provider, chunks left without vectors", "chunks", len(chunks))
		return chunks, nil
	}

	vecs, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		c.log.Error("Chunk embedding failed", "strategy", s.Name(), "chunks", len(chunks), "error", err)
		return chunks, nil
	}
	for i := range chunks {
		if i < len(vecs) {
			chunks[i].Embedding = vecs[i]
		}
	}
	return chunks, nil
}
