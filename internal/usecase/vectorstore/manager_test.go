package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/embedhq/codevec/internal/domain"
)

func TestNew_InvalidSchema(t *testing.T) {
	schema := smallSchema()
	schema.VectorSize = 0
	_, err := New(newFakeStore(), schema, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for invalid schema")
	}
	if !errors.Is(err, domain.ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestEnsureCollection_CreatesWhenAbsent(t *testing.T) {
	fake := newFakeStore()
	m := newTestManager(t, fake, domain.CodeSegmentSchema())

	if err := m.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	col, ok := fake.collections[domain.CodeSegmentsCollection]
	if !ok {
		t.Fatal("collection was not created")
	}
	if col.params.Size != 1536 {
		t.Errorf("vector size = %d, want 1536", col.params.Size)
	}
	if col.params.Distance != domain.DistanceCosine {
		t.Errorf("distance = %q, want Cosine", col.params.Distance)
	}
	if len(col.indexes) != 3 {
		t.Fatalf("expected 3 payload indexes, got %d", len(col.indexes))
	}
	wantFields := map[string]bool{
		domain.FieldLanguage:     false,
		domain.FieldFileType:     false,
		domain.FieldPatternTypes: false,
	}
	for _, idx := range col.indexes {
		if idx.Type != domain.IndexKeyword {
			t.Errorf("index %q type = %q, want keyword", idx.FieldPath, idx.Type)
		}
		wantFields[idx.FieldPath] = true
	}
	for field, seen := range wantFields {
		if !seen {
			t.Errorf("missing payload index on %q", field)
		}
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	fake := newFakeStore()
	m := newTestManager(t, fake, smallSchema())

	for i := 0; i < 3; i++ {
		if err := m.EnsureCollection(context.Background()); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}

	if len(fake.collections) != 1 {
		t.Fatalf("expected exactly 1 collection, got %d", len(fake.collections))
	}
	col := fake.collections["segments-test"]
	if len(col.indexes) != 3 {
		t.Errorf("expected exactly 3 indexes after repeated calls, got %d", len(col.indexes))
	}
}

func TestEnsureCollection_SkipsExistingRegardlessOfSchema(t *testing.T) {
	// A pre-existing collection under the bound name is accepted as-is, even
	// with different parameters. Presence is checked by name only.
	fake := newFakeStore()
	if err := fake.CreateCollection(context.Background(), "segments-test", domain.VectorParams{
		Size:     8,
		Distance: domain.DistanceEuclid,
	}); err != nil {
		t.Fatalf("seed collection: %v", err)
	}

	ms := &mockStore{
		listFn: func(context.Context) ([]string, error) {
			return []string{"other", "segments-test"}, nil
		},
	}
	m := newTestManager(t, ms, smallSchema())

	if err := m.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.createCalls != 0 {
		t.Errorf("expected no create call, got %d", ms.createCalls)
	}
	if ms.createIndexCalls != 0 {
		t.Errorf("expected no index calls, got %d", ms.createIndexCalls)
	}
}

func TestEnsureCollection_ListError(t *testing.T) {
	listErr := errors.New("qdrant: connection refused")
	ms := &mockStore{
		listFn: func(context.Context) ([]string, error) { return nil, listErr },
	}
	m := newTestManager(t, ms, smallSchema())

	err := m.EnsureCollection(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, listErr) {
		t.Errorf("expected list error wrapped, got %v", err)
	}
	if ms.createCalls != 0 {
		t.Errorf("expected no create attempt after list failure, got %d", ms.createCalls)
	}
}

func TestEnsureCollection_ConcurrentCreateRace(t *testing.T) {
	// Another bootstrapper created the collection between list and create:
	// already-exists is a benign idempotency conflict, not a failure. The
	// winner creates the indexes, so the loser must not.
	ms := &mockStore{
		createFn: func(context.Context, string, domain.VectorParams) error {
			return domain.ErrAlreadyExists
		},
	}
	m := newTestManager(t, ms, smallSchema())

	if err := m.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("expected race to be treated as success, got %v", err)
	}
	if ms.createIndexCalls != 0 {
		t.Errorf("loser of the race must not create indexes, got %d calls", ms.createIndexCalls)
	}
}

func TestEnsureCollection_IndexErrorPropagatesWithoutRollback(t *testing.T) {
	idxErr := errors.New("qdrant: service unavailable")
	fake := newFakeStore()
	ms := &mockStore{
		createFn: fake.CreateCollection,
		createIndexFn: func(context.Context, string, domain.PayloadIndex) error {
			return idxErr
		},
	}
	m := newTestManager(t, ms, smallSchema())

	err := m.EnsureCollection(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, idxErr) {
		t.Errorf("expected index error wrapped, got %v", err)
	}
	// No rollback: the collection stays, partially indexed.
	if _, ok := fake.collections["segments-test"]; !ok {
		t.Error("collection must not be rolled back after index failure")
	}
}

func TestStoreVector_UpsertOverwrite(t *testing.T) {
	fake := newFakeStore()
	m := newTestManager(t, fake, smallSchema())
	ctx := context.Background()
	if err := m.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	p1 := map[string]any{"rev": "first"}
	p2 := map[string]any{"note": "second"}

	if err := m.StoreVector(ctx, "x", vec, p1); err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := m.StoreVector(ctx, "x", vec, p2); err != nil {
		t.Fatalf("second store: %v", err)
	}

	col := fake.collections["segments-test"]
	if len(col.points) != 1 {
		t.Fatalf("expected exactly 1 point, got %d", len(col.points))
	}
	got := col.points["x"].Payload
	if got["note"] != "second" {
		t.Errorf("payload note = %v, want %q", got["note"], "second")
	}
	if _, stale := got["rev"]; stale {
		t.Error("upsert must replace the payload wholesale, found field from first write")
	}
}

func TestStoreVector_ConcurrentWriters(t *testing.T) {
	// All ingest workers share one Manager instance; concurrent upserts of
	// distinct ids must all land.
	fake := newFakeStore()
	m := newTestManager(t, fake, smallSchema())
	ctx := context.Background()
	if err := m.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("point-%d", i)
			errs[i] = m.StoreVector(ctx, id, []float32{1, 2, 3, 4}, map[string]any{"writer": id})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d: %v", i, err)
		}
	}
	if n := len(fake.collections["segments-test"].points); n != writers {
		t.Errorf("expected %d points, got %d", writers, n)
	}
}

func TestStoreVector_DimensionMismatch(t *testing.T) {
	fake := newFakeStore()
	m := newTestManager(t, fake, smallSchema())
	ctx := context.Background()
	if err := m.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	err := m.StoreVector(ctx, "bad", []float32{0.1, 0.2, 0.3}, nil)
	if err == nil {
		t.Fatal("expected error for wrong dimensionality")
	}
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
	if n := len(fake.collections["segments-test"].points); n != 0 {
		t.Errorf("expected no point written, got %d", n)
	}
}

func TestStoreVector_FilterByIndexedField(t *testing.T) {
	fake := newFakeStore()
	m := newTestManager(t, fake, smallSchema())
	ctx := context.Background()
	if err := m.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	vec := []float32{1, 0, 0, 0}
	store := func(id string, payload map[string]any) {
		t.Helper()
		if err := m.StoreVector(ctx, id, vec, payload); err != nil {
			t.Fatalf("store %s: %v", id, err)
		}
	}

	store("py1", map[string]any{"file_context": map[string]any{"language": "python"}})
	store("py2", map[string]any{"file_context": map[string]any{"language": "python"}})
	store("go1", map[string]any{"file_context": map[string]any{"language": "go"}})
	store("bare", map[string]any{"filters": map[string]any{"pattern_types": []string{"test"}}})

	ids := fake.filterPoints("segments-test", domain.FieldLanguage, "python")
	if len(ids) != 2 {
		t.Fatalf("filter returned %d points, want 2: %v", len(ids), ids)
	}
	for _, id := range ids {
		if id != "py1" && id != "py2" {
			t.Errorf("unexpected id in filter result: %s", id)
		}
	}

	ids = fake.filterPoints("segments-test", domain.FieldPatternTypes, "test")
	if len(ids) != 1 || ids[0] != "bare" {
		t.Errorf("pattern_types filter = %v, want [bare]", ids)
	}
}

func TestStoreVector_FailurePropagatesAndLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ms := &mockStore{
		upsertFn: func(context.Context, string, domain.Point) error {
			return fmt.Errorf("%w: dial tcp: connection refused", domain.ErrUnavailable)
		},
	}
	m, err := New(ms, smallSchema(), zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = m.StoreVector(context.Background(), "doomed", []float32{1, 2, 3, 4}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 error log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["id"] != "doomed" {
		t.Errorf("error log id = %v, want %q", fields["id"], "doomed")
	}
}
