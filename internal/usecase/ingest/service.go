// Package ingest turns change events into stored code segment vectors. A
// worker pool drains the queue; each file change is fetched, classified,
// embedded and upserted independently. One broken file never blocks the
// rest of a push.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/analysis"
	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/metrics"
	"github.com/embedhq/codevec/internal/queue"
)

const (
	defaultWorkers      = 4
	defaultMaxFileBytes = 512 * 1024
)

// Service consumes change events and ingests the affected files.
type Service struct {
	source  queue.Source
	dir     Directory
	fetcher ContentFetcher
	embed   Embedder
	writer  VectorWriter
	logger  *zap.Logger

	workers      int
	maxFileBytes int
}

// New creates an ingestion service with default worker and size limits.
func New(
	source queue.Source, dir Directory, fetcher ContentFetcher,
	embed Embedder, writer VectorWriter, logger *zap.Logger,
) *Service {
	return &Service{
		source:       source,
		dir:          dir,
		fetcher:      fetcher,
		embed:        embed,
		writer:       writer,
		logger:       logger,
		workers:      defaultWorkers,
		maxFileBytes: defaultMaxFileBytes,
	}
}

// WithWorkers configures the worker pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithMaxFileBytes configures the per-file content size limit. Zero or
// negative disables the limit.
func (s *Service) WithMaxFileBytes(n int) *Service {
	s.maxFileBytes = n
	return s
}

// PointID derives the deterministic id of a file's point. Re-ingesting the
// same path on the same branch always lands on the same point, so a re-push
// replaces the previous vector instead of accumulating duplicates.
func PointID(repositoryID int64, branch, path string) string {
	name := fmt.Sprintf("codevec://%d/%s/%s", repositoryID, branch, path)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Run starts the source and processes messages until the source channel
// closes, after context cancellation or source Close.
func (s *Service) Run(ctx context.Context) error {
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("start change event source: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range s.source.Messages() {
				s.handleMessage(ctx, raw)
			}
		}()
	}
	wg.Wait()

	s.logger.Info("Ingestion stopped")
	return nil
}

func (s *Service) handleMessage(ctx context.Context, raw queue.ConsumerMessage) {
	var msg queue.Message
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("Discarding undecodable change event", zap.Error(err))
		return
	}
	metrics.IngestMessagesTotal.WithLabelValues(string(msg.EventType)).Inc()

	switch msg.EventType {
	case queue.EventPush:
		s.handlePush(ctx, msg)
	case queue.EventSetup:
		s.handleSetup(ctx, msg)
	case queue.EventDelete:
		// Points are never deleted; a deleted branch simply stops updating.
		s.logger.Info("Ignoring delete event",
			zap.Int64("repository_id", msg.RepositoryID),
			zap.String("deleted_ref", msg.DeletedRef))
	default:
		s.logger.Warn("Ignoring unknown event type",
			zap.String("event_type", string(msg.EventType)))
	}
}

// handlePush ingests the file changes carried by a push event. The webhook
// side already filtered paths, so every non-removed change is attempted.
func (s *Service) handlePush(ctx context.Context, msg queue.Message) {
	account, err := s.dir.Account(ctx, msg.GitAccountID)
	if err != nil {
		s.logger.Error("Failed to resolve git account",
			zap.Int64("git_account_id", msg.GitAccountID),
			zap.Int64("repository_id", msg.RepositoryID),
			zap.Error(err))
		return
	}

	var stored int
	for _, change := range msg.FileChanges {
		if change.ChangeType == queue.ChangeRemoved {
			metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		// The change's sha is the commit id, a valid content ref.
		if s.ingestFile(ctx, account.AccessToken, change.SHA, msg, change) {
			stored++
		}
	}

	s.finishMessage(ctx, msg, stored)
}

// handleSetup performs a full branch scan: list the tree, filter by the
// repository's patterns, ingest every eligible blob.
func (s *Service) handleSetup(ctx context.Context, msg queue.Message) {
	repo, err := s.dir.RepositoryByID(ctx, msg.RepositoryID)
	if err != nil {
		s.logger.Error("Failed to resolve repository",
			zap.Int64("repository_id", msg.RepositoryID),
			zap.Error(err))
		return
	}
	account, err := s.dir.Account(ctx, msg.GitAccountID)
	if err != nil {
		s.logger.Error("Failed to resolve git account",
			zap.Int64("git_account_id", msg.GitAccountID),
			zap.Int64("repository_id", msg.RepositoryID),
			zap.Error(err))
		return
	}

	files, err := s.fetcher.Tree(ctx, account.AccessToken, msg.RepositoryURL, msg.Branch)
	if err != nil {
		s.logger.Error("Failed to list repository tree",
			zap.Int64("repository_id", msg.RepositoryID),
			zap.String("branch", msg.Branch),
			zap.Error(err))
		return
	}

	s.logger.Info("Starting full scan",
		zap.Int64("repository_id", msg.RepositoryID),
		zap.String("branch", msg.Branch),
		zap.Int("files", len(files)))

	var stored int
	for _, f := range files {
		if !analysis.ShouldProcess(f.Path, repo.FilePatterns) {
			metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		change := queue.FileChange{Path: f.Path, SHA: f.SHA, ChangeType: queue.ChangeAdded}
		if s.ingestFile(ctx, account.AccessToken, msg.Branch, msg, change) {
			stored++
		}
	}

	s.finishMessage(ctx, msg, stored)
}

// ingestFile fetches, classifies, embeds and stores one file. Reports true
// when a vector was stored. Failures are logged and counted, never fatal.
func (s *Service) ingestFile(ctx context.Context, token, ref string, msg queue.Message, change queue.FileChange) bool {
	start := time.Now()

	content, err := s.fetcher.FileContent(ctx, token, msg.RepositoryURL, change.Path, ref)
	if err != nil {
		s.fileFailed(msg, change, "fetch", err)
		return false
	}
	if s.maxFileBytes > 0 && len(content) > s.maxFileBytes {
		metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("Skipping oversized file",
			zap.String("path", change.Path),
			zap.Int("bytes", len(content)))
		return false
	}

	cls := analysis.Classify(change.Path, content)

	result, err := s.embed.Embed(ctx, content)
	if err != nil {
		s.fileFailed(msg, change, "embed", err)
		return false
	}

	payload := domain.SegmentPayload{
		FileContext: domain.FileContext{
			Path:       change.Path,
			Language:   cls.Language,
			Type:       cls.FileType,
			Repository: msg.RepositoryURL,
			Branch:     msg.Branch,
			CommitSHA:  change.SHA,
		},
		Filters:    domain.Filters{PatternTypes: cls.PatternTypes},
		Commit:     commitFor(msg, change),
		IngestedAt: time.Now().UTC(),
	}

	id := PointID(msg.RepositoryID, msg.Branch, change.Path)
	if err := s.writer.StoreVector(ctx, id, result.Embedding, payload.PayloadMap()); err != nil {
		s.fileFailed(msg, change, "store", err)
		return false
	}

	metrics.IngestFilesTotal.WithLabelValues("stored").Inc()
	metrics.IngestFileDuration.Observe(time.Since(start).Seconds())
	return true
}

func (s *Service) fileFailed(msg queue.Message, change queue.FileChange, stage string, err error) {
	metrics.IngestFilesTotal.WithLabelValues("failed").Inc()
	s.logger.Warn("File ingestion failed",
		zap.Int64("repository_id", msg.RepositoryID),
		zap.String("path", change.Path),
		zap.String("stage", stage),
		zap.Error(err))
}

func (s *Service) finishMessage(ctx context.Context, msg queue.Message, stored int) {
	s.logger.Info("Change event processed",
		zap.Int64("repository_id", msg.RepositoryID),
		zap.String("event_type", string(msg.EventType)),
		zap.Int("stored", stored))

	if err := s.dir.TouchSynced(ctx, msg.RepositoryID, time.Now().UTC()); err != nil {
		s.logger.Warn("Failed to record sync time",
			zap.Int64("repository_id", msg.RepositoryID),
			zap.Error(err))
	}
}

// commitFor builds the payload commit block. Setup scans carry no commit, so
// the file's own sha and the event time stand in.
func commitFor(msg queue.Message, change queue.FileChange) domain.CommitInfo {
	if msg.CommitInfo != nil {
		ts, _ := time.Parse(time.RFC3339, msg.CommitInfo.Timestamp)
		return domain.CommitInfo{
			SHA:       msg.CommitInfo.SHA,
			Message:   msg.CommitInfo.Message,
			Author:    msg.CommitInfo.Author,
			Timestamp: ts,
		}
	}
	ts, _ := time.Parse(time.RFC3339, msg.EventTimestamp)
	return domain.CommitInfo{SHA: change.SHA, Timestamp: ts}
}
