package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	healthuc "github.com/embedhq/codevec/internal/usecase/health"
)

func getPath(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint_OK(t *testing.T) {
	router := newRouter(testDirectory(), &mockPublisher{})

	rr := getPath(router, "/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != string(healthuc.Healthy) {
		t.Errorf("status field: got %q, want %q", resp.Status, healthuc.Healthy)
	}
	if resp.Checks["vector_store"] != healthuc.CheckOK {
		t.Errorf("vector_store check: got %q, want %q", resp.Checks["vector_store"], healthuc.CheckOK)
	}
}

func TestHealthEndpoint_Degraded_503(t *testing.T) {
	srv := NewServer(
		testDirectory(),
		&mockPublisher{},
		healthuc.New(&fakeStoreChecker{err: errors.New("conn refused")}, nil, nil),
		zap.NewNop(),
	)
	r := chi.NewRouter()
	srv.Register(r)

	rr := getPath(r, "/health")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != string(healthuc.Degraded) {
		t.Errorf("status field: got %q, want %q", resp.Status, healthuc.Degraded)
	}
	if resp.Checks["vector_store"] != healthuc.CheckError {
		t.Errorf("vector_store check: got %q, want %q", resp.Checks["vector_store"], healthuc.CheckError)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(testDirectory(), &mockPublisher{})

	rr := getPath(router, "/metrics")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty metrics exposition")
	}
}
