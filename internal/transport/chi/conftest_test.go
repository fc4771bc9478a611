package chi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/metrics"
	"github.com/embedhq/codevec/internal/queue"
	healthuc "github.com/embedhq/codevec/internal/usecase/health"
)

func TestMain(m *testing.M) {
	metrics.RegisterIngestMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockDirectory struct {
	repos    map[int64]domain.Repository
	accounts map[int64]domain.GitAccount
	repoErr  error
	accErr   error
}

func (m *mockDirectory) RepositoryByID(_ context.Context, id int64) (domain.Repository, error) {
	if m.repoErr != nil {
		return domain.Repository{}, m.repoErr
	}
	repo, ok := m.repos[id]
	if !ok {
		return domain.Repository{}, fmt.Errorf("repository %d: %w", id, domain.ErrNotFound)
	}
	return repo, nil
}

func (m *mockDirectory) Account(_ context.Context, id int64) (domain.GitAccount, error) {
	if m.accErr != nil {
		return domain.GitAccount{}, m.accErr
	}
	acc, ok := m.accounts[id]
	if !ok {
		return domain.GitAccount{}, fmt.Errorf("git account %d: %w", id, domain.ErrNotFound)
	}
	return acc, nil
}

type mockPublisher struct {
	err       error
	published []queue.Message
}

func (m *mockPublisher) Publish(_ context.Context, msg queue.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.published = append(m.published, msg)
	return "msg-123", nil
}

type fakeStoreChecker struct {
	err error
}

func (f *fakeStoreChecker) HealthCheck(_ context.Context) error { return f.err }

// --- Fixtures ---

const testSecret = "hook-secret"

func testRepo() domain.Repository {
	return domain.Repository{
		ID:            42,
		ProjectID:     7,
		GitAccountID:  3,
		Name:          "acme/widget",
		URL:           "https://github.com/acme/widget",
		Branch:        "main",
		WebhookSecret: testSecret,
		IsActive:      true,
	}
}

func testAccount() domain.GitAccount {
	return domain.GitAccount{ID: 3, Name: "acme-bot", AccessToken: "tok-1", IsActive: true}
}

func testDirectory() *mockDirectory {
	return &mockDirectory{
		repos:    map[int64]domain.Repository{42: testRepo()},
		accounts: map[int64]domain.GitAccount{3: testAccount()},
	}
}

func pushBody(t *testing.T) []byte {
	t.Helper()
	payload := map[string]any{
		"ref":    "refs/heads/main",
		"before": "before-sha",
		"after":  "after-sha",
		"commits": []map[string]any{{
			"id":       "commit-1",
			"added":    []string{"pkg/server.go", "README.md"},
			"modified": []string{"cmd/main.go"},
			"removed":  []string{"old/legacy.go"},
		}},
		"head_commit": map[string]any{
			"message":   "add server",
			"author":    map[string]any{"name": "dev"},
			"timestamp": "2026-08-20T10:00:00Z",
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}
	return b
}

// --- Helpers ---

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newRouter(dir Directory, pub Publisher) http.Handler {
	srv := NewServer(dir, pub, healthuc.New(&fakeStoreChecker{}, nil, nil), zap.NewNop())
	r := chi.NewRouter()
	srv.Register(r)
	return r
}

func postWebhook(router http.Handler, repoID, event string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/github/"+repoID, bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}
