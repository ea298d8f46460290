package document

import "strconv"

// Metadata keys written by the ingestion path.
const (
	MetaTextKey       = "text"
	MetaChunkIndexKey = "chunk_index"
	MetaFilenameKey   = "filename"
	MetaBucketKey     = "bucket"
	MetaFileTypeKey   = "file_type"
)

// StagedFile is an object copied to transient local storage for extraction.
type StagedFile struct {
	Bucket   string
	Filename string
	Path     string
	Type     FileType
	Size     int64
}

// Extracted is the text of one document plus format metadata.
type Extracted struct {
	Text     string
	Metadata map[string]string
}

// Empty reports whether extraction produced nothing to chunk.
func (e Extracted) Empty() bool { return e.Text == "" }

// Chunk is one ordered fragment of a document.
// Embedding is nil when the provider produced nothing for it.
type Chunk struct {
	Index     int
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

func (c Chunk) HasEmbedding() bool { return len(c.Embedding) > 0 }

// CloneMetadata copies md so per-chunk fields never leak between chunks.
func CloneMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md)+2)
	for k, v := range md {
		out[k] = v
	}
	return out
}

// NewChunk builds chunk index i of a document, copying the document metadata.
func NewChunk(i int, text string, docMeta map[string]string) Chunk {
	md := CloneMetadata(docMeta)
	md[MetaChunkIndexKey] = strconv.Itoa(i)
	return Chunk{Index: i, Text: text, Metadata: md}
}
