// Package points turns embedded chunks into vector-store points.
package points

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

// Namespace seeds every point id so the same chunk always maps to the same id.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("vector-db-proxy/points"))

// Result holds the points that were built and how many chunks had no vector.
type Result struct {
	Points  []vectorstore.Point
	Skipped int
}

// Build converts chunks of one file. Chunks without an embedding are skipped.
// The payload is the chunk metadata plus the chunk text under "text".
func Build(dataSourceID, filename string, chunks []document.Chunk) Result {
	out := Result{Points: make([]vectorstore.Point, 0, len(chunks))}
	for _, ch := range chunks {
		if !ch.HasEmbedding() {
			out.Skipped++
			continue
		}
		out.Points = append(out.Points, vectorstore.Point{
			ID:      ChunkID(dataSourceID, filename, ch.Index),
			Vector:  ch.Embedding,
			Payload: Payload(ch),
		})
	}
	return out
}

func Payload(ch document.Chunk) map[string]any {
	payload := make(map[string]any, len(ch.Metadata)+1)
	for k, v := range ch.Metadata {
		payload[k] = v
	}
	payload[document.MetaTextKey] = ch.Text
	return payload
}

func ChunkID(dataSourceID, filename string, index int) string {
	return uuid.NewSHA1(Namespace, []byte(dataSourceID+"|"+filename+"|"+strconv.Itoa(index))).String()
}

// RecordID identifies a forwarded record by the digest of its rendered text.
func RecordID(dataSourceID, text string) string {
	sum := sha1.Sum([]byte(text))
	return uuid.NewSHA1(Namespace, []byte(dataSourceID+"|forward|"+hex.EncodeToString(sum[:]))).String()
}
