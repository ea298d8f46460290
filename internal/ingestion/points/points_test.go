package points

import (
	"testing"

	"github.com/google/uuid"

	"github.com/agentcloud/vector-db-proxy/internal/domain/document"
)

func TestBuildSkipsChunksWithoutEmbedding(t *testing.T) {
	chunks := []document.Chunk{
		document.NewChunk(0, "first", map[string]string{"title": "Doc"}),
		document.NewChunk(1, "second", map[string]string{"title": "Doc"}),
		document.NewChunk(2, "third", map[string]string{"title": "Doc"}),
	}
	chunks[0].Embedding = []float32{0.1, 0.2}
	chunks[2].Embedding = []float32{0.3, 0.4}

	res := Build("ds1", "a.pdf", chunks)
	if len(res.Points) != 2 {
		t.Fatalf("points: want=2 got=%d", len(res.Points))
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped: want=1 got=%d", res.Skipped)
	}
	p := res.Points[1]
	if p.Payload["text"] != "third" {
		t.Fatalf("payload text: want=%q got=%v", "third", p.Payload["text"])
	}
	if p.Payload["title"] != "Doc" || p.Payload["chunk_index"] != "2" {
		t.Fatalf("payload metadata: got=%v", p.Payload)
	}
	if len(p.Vector) != 2 || p.Vector[0] != 0.3 {
		t.Fatalf("vector: got=%v", p.Vector)
	}
}

func TestPayloadTextOverridesMetadata(t *testing.T) {
	ch := document.Chunk{Text: "body", Metadata: map[string]string{"text": "stale"}}
	if got := Payload(ch)["text"]; got != "body" {
		t.Fatalf("text: want=%q got=%v", "body", got)
	}
	if ch.Metadata["text"] != "stale" {
		t.Fatalf("chunk metadata must not be mutated")
	}
}

func TestIDsAreDeterministicUUIDs(t *testing.T) {
	a := ChunkID("ds1", "a.pdf", 0)
	if a != ChunkID("ds1", "a.pdf", 0) {
		t.Fatalf("ChunkID not stable")
	}
	if a == ChunkID("ds1", "a.pdf", 1) || a == ChunkID("ds2", "a.pdf", 0) {
		t.Fatalf("ChunkID collision across index or data source")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("ChunkID not a uuid: %v", err)
	}
	r := RecordID("ds1", "name: x")
	if r != RecordID("ds1", "name: x") || r == RecordID("ds1", "name: y") {
		t.Fatalf("RecordID must depend only on data source and text")
	}
}

func TestBuildEmpty(t *testing.T) {
	res := Build("ds1", "a.txt", nil)
	if len(res.Points) != 0 || res.Skipped != 0 {
		t.Fatalf("empty build: got=%+v", res)
	}
}
