// Package registry persists tracked repositories and their Git accounts in
// SQLite. It is the control-plane companion of the vector collection: the
// webhook receiver authorizes deliveries against it and the ingestion
// pipeline resolves access tokens through it.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/embedhq/codevec/internal/domain"
)

// Registry is a SQLite-backed store of repositories and git accounts.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if needed) the registry database at path and applies
// the schema.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return r, nil
}

func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS git_accounts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		name         TEXT NOT NULL,
		access_token TEXT NOT NULL,
		is_active    INTEGER NOT NULL DEFAULT 1,
		created_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS repositories (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id     INTEGER NOT NULL,
		git_account_id INTEGER NOT NULL,
		name           TEXT NOT NULL,
		repository_url TEXT NOT NULL,
		branch         TEXT NOT NULL DEFAULT 'main',
		webhook_secret TEXT,
		file_patterns  TEXT,
		is_active      INTEGER NOT NULL DEFAULT 1,
		created_at     TEXT NOT NULL,
		last_synced_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_account ON repositories(git_account_id);
	`
	_, err := r.db.Exec(schema)
	return err
}

// RepositoryByID returns a repository by its primary key.
func (r *Registry) RepositoryByID(ctx context.Context, id int64) (domain.Repository, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, git_account_id, name, repository_url, branch,
		       webhook_secret, file_patterns, is_active, created_at, last_synced_at
		FROM repositories WHERE id = ?`, id)

	repo, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Repository{}, fmt.Errorf("repository %d: %w", id, domain.ErrNotFound)
		}
		return domain.Repository{}, fmt.Errorf("query repository %d: %w", id, err)
	}
	return repo, nil
}

// Account returns a git account by its primary key.
func (r *Registry) Account(ctx context.Context, id int64) (domain.GitAccount, error) {
	var (
		acc       domain.GitAccount
		isActive  int
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, access_token, is_active, created_at
		FROM git_accounts WHERE id = ?`, id).
		Scan(&acc.ID, &acc.Name, &acc.AccessToken, &isActive, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GitAccount{}, fmt.Errorf("git account %d: %w", id, domain.ErrNotFound)
		}
		return domain.GitAccount{}, fmt.Errorf("query git account %d: %w", id, err)
	}

	acc.IsActive = isActive != 0
	acc.CreatedAt = parseTime(createdAt)
	return acc, nil
}

// UpsertRepository inserts the repository, or replaces it when ID is set.
// Returns the assigned id.
func (r *Registry) UpsertRepository(ctx context.Context, repo domain.Repository) (int64, error) {
	patterns, err := encodePatterns(repo.FilePatterns)
	if err != nil {
		return 0, fmt.Errorf("encode file patterns: %w", err)
	}

	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if repo.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO repositories
				(project_id, git_account_id, name, repository_url, branch,
				 webhook_secret, file_patterns, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repo.ProjectID, repo.GitAccountID, repo.Name, repo.URL, repo.Branch,
			repo.WebhookSecret, patterns, boolInt(repo.IsActive), formatTime(createdAt))
		if err != nil {
			return 0, fmt.Errorf("insert repository: %w", err)
		}
		return res.LastInsertId()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO repositories
			(id, project_id, git_account_id, name, repository_url, branch,
			 webhook_secret, file_patterns, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.ProjectID, repo.GitAccountID, repo.Name, repo.URL, repo.Branch,
		repo.WebhookSecret, patterns, boolInt(repo.IsActive), formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("replace repository %d: %w", repo.ID, err)
	}
	return repo.ID, nil
}

// UpsertAccount inserts the git account, or replaces it when ID is set.
// Returns the assigned id.
func (r *Registry) UpsertAccount(ctx context.Context, acc domain.GitAccount) (int64, error) {
	createdAt := acc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if acc.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO git_accounts (name, access_token, is_active, created_at)
			VALUES (?, ?, ?, ?)`,
			acc.Name, acc.AccessToken, boolInt(acc.IsActive), formatTime(createdAt))
		if err != nil {
			return 0, fmt.Errorf("insert git account: %w", err)
		}
		return res.LastInsertId()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO git_accounts (id, name, access_token, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		acc.ID, acc.Name, acc.AccessToken, boolInt(acc.IsActive), formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("replace git account %d: %w", acc.ID, err)
	}
	return acc.ID, nil
}

// TouchSynced records a completed ingestion for the repository.
func (r *Registry) TouchSynced(ctx context.Context, repoID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE repositories SET last_synced_at = ? WHERE id = ?`,
		formatTime(at.UTC()), repoID)
	if err != nil {
		return fmt.Errorf("touch repository %d: %w", repoID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("repository %d: %w", repoID, domain.ErrNotFound)
	}
	return nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (domain.Repository, error) {
	var (
		repo         domain.Repository
		secret       sql.NullString
		patterns     sql.NullString
		isActive     int
		createdAt    string
		lastSyncedAt sql.NullString
	)
	err := row.Scan(&repo.ID, &repo.ProjectID, &repo.GitAccountID, &repo.Name,
		&repo.URL, &repo.Branch, &secret, &patterns, &isActive, &createdAt, &lastSyncedAt)
	if err != nil {
		return domain.Repository{}, err
	}

	repo.WebhookSecret = secret.String
	repo.IsActive = isActive != 0
	repo.CreatedAt = parseTime(createdAt)
	if lastSyncedAt.Valid {
		repo.LastSyncedAt = parseTime(lastSyncedAt.String)
	}
	if patterns.Valid && patterns.String != "" {
		if err := json.Unmarshal([]byte(patterns.String), &repo.FilePatterns); err != nil {
			return domain.Repository{}, fmt.Errorf("decode file patterns: %w", err)
		}
	}
	return repo, nil
}

func encodePatterns(p domain.FilePatterns) (any, error) {
	if p.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
