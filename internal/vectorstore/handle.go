package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

// Handle is the single vector-store connection shared by every message and tenant.
//
// Metadata reads (collection lookups) take the read lock and may overlap.
// Mutations (collection creation, upserts) take the write lock for the duration
// of one call only. Callers never hold the handle locked across a message.
type Handle struct {
	mu            sync.RWMutex
	store         Store
	log           *logger.Logger
	createMissing bool
	distance      Distance
}

type Option func(*Handle)

// WithCreateMissing makes BulkUpsert create absent collections sized from the first point.
func WithCreateMissing(enabled bool) Option {
	return func(h *Handle) { h.createMissing = enabled }
}

func WithDistance(d Distance) Option {
	return func(h *Handle) {
		if d != "" {
			h.distance = d
		}
	}
}

func NewHandle(log *logger.Logger, store Store, opts ...Option) *Handle {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handle{
		store:         store,
		log:           log.With("component", "VectorStoreHandle"),
		createMissing: true,
		distance:      DistanceCosine,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) CollectionExists(ctx context.Context, collection string) (bool, error) {
	if h == nil || h.store == nil {
		return false, ErrNoStore
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.CollectionExists(ctx, collection)
}

func (h *Handle) createCollection(ctx context.Context, collection string, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Another writer may have created it between our read and this lock.
	exists, err := h.store.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := h.store.CreateCollection(ctx, collection, CollectionSpec{VectorSize: size, Distance: h.distance}); err != nil {
		return err
	}
	h.log.Info("Created collection", "collection", collection, "vector_size", size, "distance", h.distance)
	return nil
}

// BulkUpsert writes points to collection as one all-or-nothing request.
func (h *Handle) BulkUpsert(ctx context.Context, collection string, points []Point) error {
	if h == nil || h.store == nil {
		return ErrNoStore
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return ErrEmptyCollection
	}
	if len(points) == 0 {
		return nil
	}

	exists, err := h.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("lookup collection %q: %w", collection, err)
	}
	if !exists {
		if !h.createMissing {
			return fmt.Errorf("collection %q: %w", collection, ErrCollectionMissing)
		}
		if err := h.createCollection(ctx, collection, len(points[0].Vector)); err != nil {
			return fmt.Errorf("create collection %q: %w", collection, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}
