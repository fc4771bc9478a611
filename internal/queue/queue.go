// Package queue carries change events from the webhook receiver to the
// ingestion pipeline. The message schema is the contract between the two
// halves of the system and must stay wire-compatible across deploys.
package queue

import (
	"context"
	"time"

	"github.com/embedhq/codevec/internal/domain"
)

// EventType discriminates queue messages.
type EventType string

const (
	// EventPush carries the file changes of a branch push.
	EventPush EventType = "push"
	// EventSetup requests a full scan of a repository branch.
	EventSetup EventType = "setup"
	// EventDelete announces a deleted branch or tag.
	EventDelete EventType = "delete"
)

// File change types, mirroring the GitHub push payload vocabulary.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// FileChange is a single file touched by a push.
type FileChange struct {
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	ChangeType  string `json:"change_type"`
	PreviousSHA string `json:"previous_sha,omitempty"`
}

// CommitInfo identifies the head commit of a push. Timestamp keeps the
// provider's own formatting.
type CommitInfo struct {
	SHA       string `json:"sha"`
	Message   string `json:"message"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
}

// Message is one change event. CommitInfo is nil for setup and delete
// events; FileChanges is empty when FullScan is set.
type Message struct {
	RepositoryID   int64        `json:"repository_id"`
	ProjectID      int64        `json:"project_id"`
	GitAccountID   int64        `json:"git_account_id"`
	RepositoryURL  string       `json:"repository_url"`
	Branch         string       `json:"branch"`
	EventType      EventType    `json:"event_type"`
	EventTimestamp string       `json:"event_timestamp"`
	CommitInfo     *CommitInfo  `json:"commit_info,omitempty"`
	FileChanges    []FileChange `json:"file_changes"`
	FullScan       bool         `json:"full_scan"`
	DeletedRef     string       `json:"deleted_ref,omitempty"`
}

// NewPushMessage builds the queue message for a branch push.
func NewPushMessage(repo domain.Repository, commit CommitInfo, changes []FileChange) Message {
	return Message{
		RepositoryID:   repo.ID,
		ProjectID:      repo.ProjectID,
		GitAccountID:   repo.GitAccountID,
		RepositoryURL:  repo.URL,
		Branch:         repo.Branch,
		EventType:      EventPush,
		EventTimestamp: time.Now().UTC().Format(time.RFC3339),
		CommitInfo:     &commit,
		FileChanges:    changes,
	}
}

// NewSetupMessage builds the queue message requesting a full branch scan.
func NewSetupMessage(repo domain.Repository) Message {
	return Message{
		RepositoryID:   repo.ID,
		ProjectID:      repo.ProjectID,
		GitAccountID:   repo.GitAccountID,
		RepositoryURL:  repo.URL,
		Branch:         repo.Branch,
		EventType:      EventSetup,
		EventTimestamp: time.Now().UTC().Format(time.RFC3339),
		FileChanges:    []FileChange{},
		FullScan:       true,
	}
}

// ConsumerMessage is a raw record delivered by a Source.
type ConsumerMessage struct {
	Key   []byte
	Value []byte
}

// Source delivers change events to the ingestion pipeline. Messages() is
// closed once the source stops, after Close or context cancellation.
type Source interface {
	Start(ctx context.Context) error
	Messages() <-chan ConsumerMessage
	Close() error
}
