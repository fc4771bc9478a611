package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
)

// mockStore implements Store with overridable func fields.
type mockStore struct {
	listFn        func(ctx context.Context) ([]string, error)
	createFn      func(ctx context.Context, name string, params domain.VectorParams) error
	createIndexFn func(ctx context.Context, collection string, index domain.PayloadIndex) error
	upsertFn      func(ctx context.Context, collection string, point domain.Point) error

	listCalls        int
	createCalls      int
	createIndexCalls int
	upsertCalls      int
}

func (m *mockStore) ListCollections(ctx context.Context) ([]string, error) {
	m.listCalls++
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) CreateCollection(ctx context.Context, name string, params domain.VectorParams) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, name, params)
	}
	return nil
}

func (m *mockStore) CreateFieldIndex(ctx context.Context, collection string, index domain.PayloadIndex) error {
	m.createIndexCalls++
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, collection, index)
	}
	return nil
}

func (m *mockStore) UpsertPoint(ctx context.Context, collection string, point domain.Point) error {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, collection, point)
	}
	return nil
}

// fakeCollection is the in-memory state of one collection.
type fakeCollection struct {
	params  domain.VectorParams
	indexes []domain.PayloadIndex
	points  map[string]domain.Point
}

// fakeStore is an in-memory Store with the semantics of a real vector
// database: named collections, duplicate-creation conflicts, index creation
// only on existing collections, dimension-checked upserts.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string]*fakeCollection)}
}

func (f *fakeStore) ListCollections(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeStore) CreateCollection(_ context.Context, name string, params domain.VectorParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrAlreadyExists)
	}
	f.collections[name] = &fakeCollection{params: params, points: make(map[string]domain.Point)}
	return nil
}

func (f *fakeStore) CreateFieldIndex(_ context.Context, collection string, index domain.PayloadIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	col.indexes = append(col.indexes, index)
	return nil
}

func (f *fakeStore) UpsertPoint(_ context.Context, collection string, point domain.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	if len(point.Vector) != col.params.Size {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(point.Vector), col.params.Size)
	}
	col.points[point.ID] = point
	return nil
}

// filterPoints returns ids of points whose payload carries the dot-path field
// with the given value. Points lacking the field are excluded, not errors.
func (f *fakeStore) filterPoints(collection, fieldPath, value string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return nil
	}
	var ids []string
	for id, p := range col.points {
		if payloadFieldMatches(p.Payload, fieldPath, value) {
			ids = append(ids, id)
		}
	}
	return ids
}

func payloadFieldMatches(payload map[string]any, fieldPath, value string) bool {
	parts := strings.Split(fieldPath, ".")
	var cur any = payload
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[part]
		if !ok {
			return false
		}
	}
	switch v := cur.(type) {
	case string:
		return v == value
	case []string:
		for _, s := range v {
			if s == value {
				return true
			}
		}
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == value {
				return true
			}
		}
	}
	return false
}

// smallSchema keeps test vectors short. Property tests that assert the
// production constants use domain.CodeSegmentSchema directly.
func smallSchema() domain.CollectionSchema {
	return domain.CollectionSchema{
		Name:       "segments-test",
		VectorSize: 4,
		Distance:   domain.DistanceCosine,
		PayloadIndexes: []domain.PayloadIndex{
			{FieldPath: domain.FieldLanguage, Type: domain.IndexKeyword},
			{FieldPath: domain.FieldFileType, Type: domain.IndexKeyword},
			{FieldPath: domain.FieldPatternTypes, Type: domain.IndexKeyword},
		},
	}
}

func newTestManager(t *testing.T, store Store, schema domain.CollectionSchema) *Manager {
	t.Helper()
	m, err := New(store, schema, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}
