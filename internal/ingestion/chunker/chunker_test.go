package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

// topicEmbedder maps texts onto two axes by keyword so boundaries are predictable.
type topicEmbedder struct {
	calls [][]string
	err   error
}

func (e *topicEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		cats := strings.Contains(t, "Cats")
		rockets := strings.Contains(t, "Rockets")
		switch {
		case strings.Contains(t, "skip"):
			out[i] = nil
		case cats && rockets:
			out[i] = []float32{0.7, 0.7}
		case cats:
			out[i] = []float32{1, 0}
		case rockets:
			out[i] = []float32{0, 1}
		default:
			out[i] = []float32{0.5, 0.5}
		}
	}
	return out, nil
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("  One. Two?  Three!\nFour 3.5 percent. ")
	assert.Equal(t, []string{"One.", "Two?", "Three!", "Four 3.5 percent."}, got)
	assert.Empty(t, splitSentences("   "))
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 0.9, percentile([]float64{0, 1, 0}, 95), 1e-9)
	assert.InDelta(t, 3.0, percentile([]float64{5, 1, 3}, 50), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 95))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 0}))
}

func TestSemanticBreaksOnTopicShift(t *testing.T) {
	emb := &topicEmbedder{}
	s := NewSemantic(emb, 0, 95)

	parts, err := s.Split(context.Background(), "Cats purr. Cats nap. Rockets launch. Rockets orbit.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats purr. Cats nap.", "Rockets launch. Rockets orbit."}, parts)
	require.Len(t, emb.calls, 1)
	assert.Len(t, emb.calls[0], 4)
}

func TestSemanticBufferWindows(t *testing.T) {
	emb := &topicEmbedder{}
	s := NewSemantic(emb, 1, 95)
	_, err := s.Split(context.Background(), "A one. B two. C three.")
	require.NoError(t, err)
	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{"A one. B two.", "A one. B two. C three.", "B two. C three."}, emb.calls[0])
}

func TestSemanticSingleSentenceSkipsEmbedding(t *testing.T) {
	emb := &topicEmbedder{}
	parts, err := NewSemantic(emb, 1, 95).Split(context.Background(), "Only one sentence here")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one sentence here"}, parts)
	assert.Empty(t, emb.calls)
}

func TestSemanticEmbeddingFailure(t *testing.T) {
	emb := &topicEmbedder{err: errors.New("rate limited")}
	_, err := NewSemantic(emb, 1, 95).Split(context.Background(), "One. Two.")
	require.Error(t, err)
}

func TestFixedRespectsChunkSize(t *testing.T) {
	text := "alpha beta gamma delta\n\nepsilon zeta eta theta\n\niota kappa lambda mu"
	parts, err := NewFixed(20, 0).Split(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 20, "chunk %q", p)
	}
}

func TestChunkAttachesEmbeddingsAndMetadata(t *testing.T) {
	emb := &topicEmbedder{}
	c := New(logger.NewNop(), emb, Config{Strategy: StrategySemantic, BufferSize: 0, BreakpointPercentile: 95})
	meta := map[string]string{"title": "Pets and space"}

	chunks, err := c.Chunk(context.Background(), document.FileTypeTXT,
		"Cats purr. Cats nap. Rockets launch. Rockets orbit.", meta, "")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Cats purr. Cats nap.", chunks[0].Text)
	assert.Equal(t, []float32{1, 0}, chunks[0].Embedding)
	assert.Equal(t, "Pets and space", chunks[0].Metadata["title"])
	assert.Equal(t, "0", chunks[0].Metadata[document.MetaChunkIndexKey])

	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, []float32{0, 1}, chunks[1].Embedding)
	assert.Equal(t, "1", chunks[1].Metadata[document.MetaChunkIndexKey])

	_, leaked := meta[document.MetaChunkIndexKey]
	assert.False(t, leaked, "document metadata must not be mutated")
}

func TestChunkKeepsChunksWithoutEmbedding(t *testing.T) {
	c := New(logger.NewNop(), &topicEmbedder{}, Config{Strategy: StrategyFixed, ChunkSize: 1000})
	chunks, err := c.Chunk(context.Background(), document.FileTypePDF, "please skip me", nil, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].HasEmbedding())
}

func TestChunkUnsupportedTypesYieldNothing(t *testing.T) {
	emb := &topicEmbedder{}
	c := New(logger.NewNop(), emb, Config{})
	for _, ft := range []document.FileType{document.FileTypeDOC, document.FileTypeUnknown} {
		chunks, err := c.Chunk(context.Background(), ft, "Cats purr. Rockets launch.", nil, "")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
	assert.Empty(t, emb.calls)
}

func TestChunkUnknownStrategy(t *testing.T) {
	c := New(logger.NewNop(), &topicEmbedder{}, Config{})
	_, err := c.Chunk(context.Background(), document.FileTypeTXT, "text", nil, "markov")
	require.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Equal(t, []string{StrategyFixed, StrategySemantic}, c.Strategies())
	assert.Equal(t, StrategySemantic, c.DefaultStrategy())
}

func TestChunkEmbeddingFailureLeavesVectorsEmpty(t *testing.T) {
	emb := &topicEmbedder{}
	c := New(logger.NewNop(), emb, Config{Strategy: StrategyFixed, ChunkSize: 1000})
	emb.err = errors.New("upstream 500")
	chunks, err := c.Chunk(context.Background(), document.FileTypeTXT, "Cats purr.", nil, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Embedding)
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("CHUNKING_STRATEGY", "FIXED")
	t.Setenv("CHUNK_SIZE", "400")
	t.Setenv("CHUNK_OVERLAP", "500")
	t.Setenv("SEMANTIC_BREAKPOINT_PERCENTILE", "150")
	cfg := ResolveConfigFromEnv()
	assert.Equal(t, StrategyFixed, cfg.Strategy)
	assert.Equal(t, 400, cfg.ChunkSize)
	assert.Equal(t, 0, cfg.ChunkOverlap)
	assert.Equal(t, 95.0, cfg.BreakpointPercentile)
	assert.Equal(t, 1, cfg.BufferSize)
}
