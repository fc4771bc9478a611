package vectorstore

import (
	"context"

	"github.com/embedhq/codevec/internal/domain"
)

// Store is the narrow client contract to the vector database. Any store
// exposing these four primitives satisfies it; transport, retries and
// timeouts belong to the implementation.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, params domain.VectorParams) error
	CreateFieldIndex(ctx context.Context, collection string, index domain.PayloadIndex) error
	UpsertPoint(ctx context.Context, collection string, point domain.Point) error
}
