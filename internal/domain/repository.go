package domain

import "time"

// GitAccount holds the credentials used to pull content from a Git provider.
type GitAccount struct {
	ID          int64
	Name        string
	AccessToken string
	IsActive    bool
	CreatedAt   time.Time
}

// FilePatterns narrows which repository paths are ingested. Include and
// Exclude hold anchored regular expressions; when Include is empty every
// path with a recognized code extension passes.
type FilePatterns struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsZero reports whether no patterns are configured.
func (p FilePatterns) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// RepoFile is one blob in a repository tree listing.
type RepoFile struct {
	Path string
	SHA  string
	Size int64
}

// Repository is a tracked source repository. Only pushes to Branch are
// ingested; WebhookSecret signs inbound webhook deliveries.
type Repository struct {
	ID            int64
	ProjectID     int64
	GitAccountID  int64
	Name          string
	URL           string
	Branch        string
	WebhookSecret string
	FilePatterns  FilePatterns
	IsActive      bool
	CreatedAt     time.Time
	LastSyncedAt  time.Time
}
