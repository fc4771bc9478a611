package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
)

// Manager guarantees a collection exists with its schema before any vector is
// written, and upserts single points into it. It is a stateless facade over a
// Store: one instance per process, bound to one schema and one client.
//
// EnsureCollection checks presence by name only and never reconciles an
// existing collection's parameters against the schema. A mismatched
// pre-existing collection surfaces later as upsert failures.
type Manager struct {
	store  Store
	schema domain.CollectionSchema
	logger *zap.Logger
}

// New creates a Manager bound to the given schema. The schema is validated
// here so a broken definition fails at startup, not on first write. No
// network I/O happens until EnsureCollection or StoreVector is called.
func New(store Store, schema domain.CollectionSchema, logger *zap.Logger) (*Manager, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("collection schema: %w", err)
	}
	return &Manager{store: store, schema: schema, logger: logger}, nil
}

// Schema returns the schema the manager is bound to.
func (m *Manager) Schema() domain.CollectionSchema {
	return m.schema
}

// EnsureCollection creates the bound collection and its payload indexes if
// the collection is absent, and is a no-op when a collection with that name
// already exists. Safe to call repeatedly; the happy path after bootstrap is
// a single list call.
//
// Check-then-create is not atomic. If a concurrent creator wins the race,
// CreateCollection reports already-exists and that is treated as success: the
// winner is the one creating the indexes. A failed index creation is NOT
// rolled back; the error propagates and callers treat it as fatal, leaving
// the collection partially indexed for the operator.
func (m *Manager) EnsureCollection(ctx context.Context) error {
	names, err := m.store.ListCollections(ctx)
	if err != nil {
		m.logger.Error("Failed to list collections",
			zap.String("operation", "ensure_collection"),
			zap.String("collection", m.schema.Name),
			zap.Error(err))
		return fmt.Errorf("list collections: %w", err)
	}

	if slices.Contains(names, m.schema.Name) {
		m.logger.Info("Collection already exists", zap.String("collection", m.schema.Name))
		return nil
	}

	m.logger.Info("Creating collection",
		zap.String("collection", m.schema.Name),
		zap.Int("vector_size", m.schema.VectorSize),
		zap.String("distance", string(m.schema.Distance)))

	if err := m.store.CreateCollection(ctx, m.schema.Name, m.schema.Params()); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a bootstrap race; the winner creates the indexes.
			m.logger.Info("Collection created concurrently", zap.String("collection", m.schema.Name))
			return nil
		}
		m.logger.Error("Failed to create collection",
			zap.String("operation", "ensure_collection"),
			zap.String("collection", m.schema.Name),
			zap.Error(err))
		return fmt.Errorf("create collection %s: %w", m.schema.Name, err)
	}

	for _, idx := range m.schema.PayloadIndexes {
		if err := m.store.CreateFieldIndex(ctx, m.schema.Name, idx); err != nil {
			m.logger.Error("Failed to create payload index",
				zap.String("operation", "ensure_collection"),
				zap.String("collection", m.schema.Name),
				zap.String("field", idx.FieldPath),
				zap.Error(err))
			return fmt.Errorf("create payload index %s: %w", idx.FieldPath, err)
		}
	}

	m.logger.Info("Collection and payload indexes created",
		zap.String("collection", m.schema.Name),
		zap.Int("indexes", len(m.schema.PayloadIndexes)))
	return nil
}

// StoreVector upserts one point. An existing point with the same id is
// replaced wholesale, never merged. Vector length is validated locally
// against the schema before any write is issued. No retries; retry policy
// belongs to the caller.
func (m *Manager) StoreVector(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	if len(vector) != m.schema.VectorSize {
		err := fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(vector), m.schema.VectorSize)
		m.logger.Error("Failed to store vector",
			zap.String("operation", "store_vector"),
			zap.String("collection", m.schema.Name),
			zap.String("id", id),
			zap.Error(err))
		return err
	}

	point := domain.Point{ID: id, Vector: vector, Payload: payload}
	if err := m.store.UpsertPoint(ctx, m.schema.Name, point); err != nil {
		m.logger.Error("Failed to store vector",
			zap.String("operation", "store_vector"),
			zap.String("collection", m.schema.Name),
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("store vector %s: %w", id, err)
	}

	m.logger.Info("Stored vector",
		zap.String("collection", m.schema.Name),
		zap.String("id", id))
	return nil
}
