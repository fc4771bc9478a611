package ingest

import (
	"context"
	"time"

	"github.com/embedhq/codevec/internal/domain"
)

// ContentFetcher retrieves repository content from the Git provider.
type ContentFetcher interface {
	FileContent(ctx context.Context, token, repoURL, path, ref string) (string, error)
	Tree(ctx context.Context, token, repoURL, ref string) ([]domain.RepoFile, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// VectorWriter stores one embedded segment into the collection.
type VectorWriter interface {
	StoreVector(ctx context.Context, id string, vector []float32, payload map[string]any) error
}

// Directory resolves repositories and credentials and records sync times.
type Directory interface {
	RepositoryByID(ctx context.Context, id int64) (domain.Repository, error)
	Account(ctx context.Context, id int64) (domain.GitAccount, error)
	TouchSynced(ctx context.Context, repoID int64, at time.Time) error
}
