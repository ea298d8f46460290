package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/agentcloud/vector-db-proxy/internal/platform/embedding"
)

// Semantic groups consecutive sentences and breaks where the embedding distance
// between neighbours exceeds the given percentile of all distances.
type Semantic struct {
	embedder   embedding.Provider
	buffer     int
	percentile float64
}

func NewSemantic(embedder embedding.Provider, buffer int, percentile float64) *Semantic {
	return &Semantic{embedder: embedder, buffer: buffer, percentile: percentile}
}

func (s *Semantic) Name() string { return StrategySemantic }

func (s *Semantic) Split(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return sentences, nil
	}
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-s.buffer)
		hi := min(len(sentences), i+s.buffer+1)
		windows[i] = strings.Join(sentences[lo:hi], " ")
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embed sentence windows: %w", err)
	}

	dist := make([]float64, len(sentences)-1)
	for i := range dist {
		if i+1 >= len(vecs) || len(vecs[i]) == 0 || len(vecs[i+1]) == 0 {
			continue
		}
		dist[i] = 1 - cosine(vecs[i], vecs[i+1])
	}
	threshold := percentile(dist, s.percentile)

	var out []string
	start := 0
	for i, d := range dist {
		if d > threshold {
			out = append(out, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	out = append(out, strings.Join(sentences[start:], " "))
	return out, nil
}

// splitSentences cuts after '.', '?' or '!' when followed by whitespace.
func splitSentences(text string) []string {
	r := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(r); i++ {
		switch r[i] {
		case '.', '?', '!':
			if i+1 < len(r) && unicode.IsSpace(r[i+1]) {
				if s := strings.TrimSpace(string(r[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(string(r[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
