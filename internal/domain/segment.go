package domain

import "time"

// FileContext locates a stored code segment within its repository.
type FileContext struct {
	Path       string
	Language   string
	Type       string
	Repository string
	Branch     string
	CommitSHA  string
}

// Filters holds the coarse classification facets filtered queries rely on.
type Filters struct {
	PatternTypes []string
}

// CommitInfo identifies the push that produced a segment.
type CommitInfo struct {
	SHA       string
	Message   string
	Author    string
	Timestamp time.Time
}

// SegmentPayload is the payload document stored alongside a code segment
// vector. PayloadMap flattens it to the nested keys the collection's payload
// indexes target, so the two must move together.
type SegmentPayload struct {
	FileContext FileContext
	Filters     Filters
	Commit      CommitInfo
	IngestedAt  time.Time
}

// PayloadMap renders the payload as the document shape stored with the point.
func (p SegmentPayload) PayloadMap() map[string]any {
	return map[string]any{
		"file_context": map[string]any{
			"path":       p.FileContext.Path,
			"language":   p.FileContext.Language,
			"type":       p.FileContext.Type,
			"repository": p.FileContext.Repository,
			"branch":     p.FileContext.Branch,
			"commit_sha": p.FileContext.CommitSHA,
		},
		"filters": map[string]any{
			"pattern_types": p.Filters.PatternTypes,
		},
		"commit": map[string]any{
			"sha":       p.Commit.SHA,
			"message":   p.Commit.Message,
			"author":    p.Commit.Author,
			"timestamp": p.Commit.Timestamp.UTC().Format(time.RFC3339),
		},
		"ingested_at": p.IngestedAt.UTC().Format(time.RFC3339),
	}
}
