// Package github fetches repository content from the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second

	// maxContentBytes caps a single file download. Files that large are not
	// worth embedding anyway; the ingestion pipeline applies its own limit
	// before the fetch.
	maxContentBytes = 10 << 20
)

// Client talks to the GitHub REST API v3. Access tokens are supplied per
// call because each repository may belong to a different installation.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// Config holds the GitHub API client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a GitHub API client. A zero Config targets api.github.com.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FileContent returns the raw content of a file at the given ref.
func (c *Client) FileContent(ctx context.Context, token, repoURL, path, ref string) (string, error) {
	owner, repo, err := parseOwnerRepo(repoURL)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, owner, repo, escapePath(path), url.QueryEscape(ref))

	body, err := c.get(ctx, "get_contents", endpoint, token, "application/vnd.github.v3.raw")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Tree lists all blobs reachable from ref, recursively. Used to seed a full
// repository scan when no per-commit diff is available.
func (c *Client) Tree(ctx context.Context, token, repoURL, ref string) ([]domain.RepoFile, error) {
	owner, repo, err := parseOwnerRepo(repoURL)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, owner, repo, url.PathEscape(ref))

	body, err := c.get(ctx, "get_tree", endpoint, token, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tree []struct {
			Path string `json:"path"`
			SHA  string `json:"sha"`
			Type string `json:"type"` // "blob" or "tree"
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("get_tree: decode response: %w", err)
	}
	if parsed.Truncated {
		c.logger.Warn("Tree listing truncated by GitHub",
			zap.String("repository", repoURL),
			zap.String("ref", ref))
	}

	blobs := make([]domain.RepoFile, 0, len(parsed.Tree))
	for _, entry := range parsed.Tree {
		if entry.Type == "blob" {
			blobs = append(blobs, domain.RepoFile{Path: entry.Path, SHA: entry.SHA, Size: entry.Size})
		}
	}
	return blobs, nil
}

func (c *Client) get(ctx context.Context, op, endpoint, token, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w: %w", op, domain.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, classifyStatus(resp.StatusCode))
	}

	c.logger.Debug("GitHub request completed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode))

	return data, nil
}

// classifyStatus maps a GitHub HTTP status to a domain sentinel.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrUnauthorized
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrUnavailable
	}
}

// parseOwnerRepo extracts the owner and repository name from a clone URL
// such as https://github.com/acme/widget.
func parseOwnerRepo(repoURL string) (string, string, error) {
	trimmed := strings.TrimRight(repoURL, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed repository url %q", repoURL)
	}
	owner := parts[len(parts)-2]
	repo := parts[len(parts)-1]
	if owner == "" || repo == "" || strings.Contains(owner, ":") {
		return "", "", fmt.Errorf("malformed repository url %q", repoURL)
	}
	return owner, repo, nil
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
