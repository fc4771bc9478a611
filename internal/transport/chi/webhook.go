package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/analysis"
	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/metrics"
	"github.com/embedhq/codevec/internal/queue"
)

// GitHub caps webhook payloads at 25 MB.
const maxPayloadBytes = 25 << 20

// Delivery outcomes for the webhook_events_total metric.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeIgnored  = "ignored"
)

// pushEvent is the subset of the GitHub push payload the receiver reads.
type pushEvent struct {
	Ref        string       `json:"ref"`
	Before     string       `json:"before"`
	After      string       `json:"after"`
	Commits    []pushCommit `json:"commits"`
	HeadCommit *headCommit  `json:"head_commit"`
}

type pushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

type headCommit struct {
	Message string `json:"message"`
	Author  struct {
		Name string `json:"name"`
	} `json:"author"`
	Timestamp string `json:"timestamp"`
}

// createEvent is the subset of the GitHub create payload the receiver reads.
type createEvent struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	repoID, err := strconv.ParseInt(chi.URLParam(r, "repositoryID"), 10, 64)
	if err != nil {
		s.reject(w, http.StatusBadRequest, "bad_request", "invalid repository id")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		s.reject(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}

	repo, err := s.directory.RepositoryByID(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.reject(w, http.StatusNotFound, "not_found", "repository not found")
			return
		}
		s.logger.Error("Repository lookup failed", zap.Int64("repository_id", repoID), zap.Error(err))
		s.reject(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !repo.IsActive {
		s.reject(w, http.StatusNotFound, "not_found", "repository not found")
		return
	}

	account, err := s.directory.Account(r.Context(), repo.GitAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.reject(w, http.StatusNotFound, "not_found", "git account not found")
			return
		}
		s.logger.Error("Account lookup failed", zap.Int64("git_account_id", repo.GitAccountID), zap.Error(err))
		s.reject(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !account.IsActive {
		s.reject(w, http.StatusNotFound, "not_found", "git account not found")
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), repo.WebhookSecret) {
		s.logger.Warn("Webhook signature rejected", zap.Int64("repository_id", repo.ID))
		s.reject(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	switch event {
	case "push":
		s.processPush(w, r, repo, body)
	case "create":
		s.processCreate(w, r, repo, body)
	default:
		s.logger.Debug("Ignoring webhook event",
			zap.String("event", event),
			zap.Int64("repository_id", repo.ID))
		s.ignore(w)
	}
}

func (s *Server) processPush(w http.ResponseWriter, r *http.Request, repo domain.Repository, body []byte) {
	var payload pushEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}

	branch := branchFromRef(payload.Ref)
	if branch == "" || branch != repo.Branch {
		s.logger.Info("Skipping push for untracked ref",
			zap.String("ref", payload.Ref),
			zap.Int64("repository_id", repo.ID))
		s.ignore(w)
		return
	}

	changes := extractFileChanges(payload, repo.FilePatterns)
	if len(changes) == 0 {
		s.logger.Info("No relevant file changes in push", zap.Int64("repository_id", repo.ID))
		s.ignore(w)
		return
	}

	commit := queue.CommitInfo{SHA: payload.After}
	if payload.HeadCommit != nil {
		commit.Message = payload.HeadCommit.Message
		commit.Author = payload.HeadCommit.Author.Name
		commit.Timestamp = payload.HeadCommit.Timestamp
	}

	s.publish(w, r, queue.NewPushMessage(repo, commit, changes))
}

func (s *Server) processCreate(w http.ResponseWriter, r *http.Request, repo domain.Repository, body []byte) {
	var payload createEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}

	if payload.RefType != "branch" || payload.Ref != repo.Branch {
		s.ignore(w)
		return
	}

	s.publish(w, r, queue.NewSetupMessage(repo))
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request, msg queue.Message) {
	id, err := s.publisher.Publish(r.Context(), msg)
	if err != nil {
		s.logger.Error("Failed to publish change event",
			zap.Int64("repository_id", msg.RepositoryID),
			zap.Error(err))
		s.reject(w, http.StatusBadGateway, "unavailable", "failed to queue change event")
		return
	}

	s.logger.Info("Change event queued",
		zap.String("message_id", id),
		zap.Int64("repository_id", msg.RepositoryID),
		zap.String("event_type", string(msg.EventType)),
		zap.Int("file_changes", len(msg.FileChanges)))

	metrics.WebhookEventsTotal.WithLabelValues(outcomeAccepted).Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "queued",
		"message_id": id,
	})
}

func (s *Server) reject(w http.ResponseWriter, status int, code, message string) {
	metrics.WebhookEventsTotal.WithLabelValues(outcomeRejected).Inc()
	writeError(w, status, code, message)
}

func (s *Server) ignore(w http.ResponseWriter) {
	metrics.WebhookEventsTotal.WithLabelValues(outcomeIgnored).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

// branchFromRef extracts the branch name from a GitHub ref. Returns ""
// unless the ref names a branch.
func branchFromRef(ref string) string {
	const prefix = "refs/heads/"
	if !strings.HasPrefix(ref, prefix) {
		return ""
	}
	return strings.TrimPrefix(ref, prefix)
}

// extractFileChanges flattens the per-commit file lists of a push into
// queue file changes, dropping paths the repository's patterns exclude.
// Added files carry no previous sha; modified and removed files carry the
// push's before sha.
func extractFileChanges(payload pushEvent, patterns domain.FilePatterns) []queue.FileChange {
	var changes []queue.FileChange

	for _, commit := range payload.Commits {
		for _, path := range commit.Added {
			if analysis.ShouldProcess(path, patterns) {
				changes = append(changes, queue.FileChange{
					Path:       path,
					SHA:        commit.ID,
					ChangeType: queue.ChangeAdded,
				})
			}
		}
		for _, path := range commit.Modified {
			if analysis.ShouldProcess(path, patterns) {
				changes = append(changes, queue.FileChange{
					Path:        path,
					SHA:         commit.ID,
					ChangeType:  queue.ChangeModified,
					PreviousSHA: payload.Before,
				})
			}
		}
		for _, path := range commit.Removed {
			if analysis.ShouldProcess(path, patterns) {
				changes = append(changes, queue.FileChange{
					Path:        path,
					SHA:         commit.ID,
					ChangeType:  queue.ChangeRemoved,
					PreviousSHA: payload.Before,
				})
			}
		}
	}

	return changes
}
