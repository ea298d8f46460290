package vectorstore

import (
	"context"
	"errors"
	"strings"
)

// Point is one vector plus its payload, ready for a bulk write.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceDot       Distance = "Dot"
	DistanceEuclid    Distance = "Euclid"
	DistanceManhattan Distance = "Manhattan"
)

// ParseDistance accepts the Qdrant distance names case-insensitively.
func ParseDistance(raw string) (Distance, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cosine":
		return DistanceCosine, true
	case "dot":
		return DistanceDot, true
	case "euclid", "euclidean":
		return DistanceEuclid, true
	case "manhattan":
		return DistanceManhattan, true
	default:
		return "", false
	}
}

type CollectionSpec struct {
	VectorSize int
	Distance   Distance
}

// Store is a vector database reachable over some transport.
type Store interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string, spec CollectionSpec) error
	Upsert(ctx context.Context, collection string, points []Point) error
}

var (
	ErrEmptyCollection   = errors.New("collection name is required")
	ErrCollectionMissing = errors.New("collection does not exist")
	ErrNoStore           = errors.New("vector store not configured")
)

// Writer is the bulk-write side of a Handle, the only part the ingestion path needs.
type Writer interface {
	BulkUpsert(ctx context.Context, collection string, points []Point) error
}
