// Package analysis derives indexable metadata from repository file paths and
// contents. The results feed the payload fields the collection keeps keyword
// indexes on, so values here must stay stable across releases: a renamed
// language or pattern silently splits the index.
package analysis

import (
	"path"
	"regexp"
	"strings"

	"github.com/embedhq/codevec/internal/domain"
)

// Classification is the derived metadata for one file.
type Classification struct {
	Language     string
	FileType     string
	PatternTypes []string
}

// File type facet values.
const (
	TypeSource        = "source"
	TypeTest          = "test"
	TypeConfig        = "config"
	TypeDocumentation = "documentation"
	TypeBuild         = "build"
)

// languageByExt maps a file extension to its canonical language name.
var languageByExt = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".cc":    "cpp",
	".h":     "c",
	".c":     "c",
	".cs":    "csharp",
	".go":    "go",
	".rb":    "ruby",
	".rs":    "rust",
	".php":   "php",
	".kt":    "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sql":   "sql",
	".sh":    "shell",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".md":    "markdown",
	".rst":   "restructuredtext",
}

// defaultExtensions gates ingestion when a repository has no explicit
// file patterns configured.
var defaultExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {},
	".java": {}, ".cpp": {}, ".h": {}, ".cs": {}, ".go": {}, ".rb": {},
}

// buildFiles are well-known build and packaging manifests.
var buildFiles = map[string]struct{}{
	"makefile": {}, "dockerfile": {}, "cmakelists.txt": {},
	"go.mod": {}, "go.sum": {}, "package.json": {}, "package-lock.json": {},
	"requirements.txt": {}, "setup.py": {}, "pyproject.toml": {},
	"pom.xml": {}, "build.gradle": {}, "gemfile": {}, "cargo.toml": {},
}

// patternMarkers maps a pattern type to content substrings that signal it.
// Matching is deliberately coarse: the facet exists for filtering, not for
// precise program understanding.
var patternMarkers = map[string][]string{
	"http_api": {
		"http.Handler", "http.HandleFunc", "chi.Router", "gin.Engine",
		"@app.route", "@router.", "express(", "app.listen", "@RestController",
		"fastapi", "http.ListenAndServe",
	},
	"database": {
		"database/sql", "sql.DB", "sqlalchemy", "SELECT ", "INSERT INTO",
		"gorm.", "mongoose.", "createConnection", "cursor.execute",
	},
	"messaging": {
		"kafka", "rabbitmq", "amqp", "sqs", "pubsub", "NATS", "boto3.client('sqs'",
	},
	"concurrency": {
		"go func(", "sync.WaitGroup", "sync.Mutex", "asyncio", "threading.",
		"Promise.all", "CompletableFuture", "chan ",
	},
	"cli": {
		"cobra.Command", "argparse", "flag.Parse", "click.command", "os.Args",
	},
}

// patternOrder fixes the facet output order so payloads are reproducible.
var patternOrder = []string{"http_api", "database", "messaging", "concurrency", "cli"}

// Classify derives the metadata facets for a file. It never fails: unknown
// inputs classify as unknown language, source type, no patterns.
func Classify(filePath, content string) Classification {
	return Classification{
		Language:     Language(filePath),
		FileType:     fileType(filePath),
		PatternTypes: detectPatterns(content),
	}
}

// Language returns the canonical language name for a path, or "unknown".
func Language(filePath string) string {
	if lang, ok := languageByExt[strings.ToLower(path.Ext(filePath))]; ok {
		return lang
	}
	return "unknown"
}

func fileType(filePath string) string {
	base := strings.ToLower(path.Base(filePath))
	ext := strings.ToLower(path.Ext(filePath))

	if _, ok := buildFiles[base]; ok {
		return TypeBuild
	}
	if isTestPath(filePath, base) {
		return TypeTest
	}
	switch ext {
	case ".md", ".rst", ".txt":
		return TypeDocumentation
	case ".yaml", ".yml", ".json", ".toml", ".ini", ".env":
		return TypeConfig
	}
	if strings.Contains(strings.ToLower(filePath), "docs/") {
		return TypeDocumentation
	}
	return TypeSource
}

func isTestPath(filePath, base string) bool {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."):
		return true
	case strings.Contains(lower, "/tests/"),
		strings.Contains(lower, "/test/"),
		strings.HasPrefix(lower, "tests/"),
		strings.HasPrefix(lower, "test/"):
		return true
	}
	return false
}

func detectPatterns(content string) []string {
	if content == "" {
		return nil
	}
	var found []string
	for _, name := range patternOrder {
		for _, marker := range patternMarkers[name] {
			if strings.Contains(content, marker) {
				found = append(found, name)
				break
			}
		}
	}
	return found
}

// ShouldProcess reports whether a path is eligible for ingestion. With no
// configured patterns the default code extension set applies. Include
// patterns, when present, must match; exclude patterns veto afterwards.
// A pattern that fails to compile is skipped.
func ShouldProcess(filePath string, patterns domain.FilePatterns) bool {
	if patterns.IsZero() {
		_, ok := defaultExtensions[strings.ToLower(path.Ext(filePath))]
		return ok
	}

	if len(patterns.Include) > 0 && !anyMatch(patterns.Include, filePath) {
		return false
	}
	if anyMatch(patterns.Exclude, filePath) {
		return false
	}
	return true
}

func anyMatch(patterns []string, filePath string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		// Anchored at the start, like a path prefix match.
		if loc := re.FindStringIndex(filePath); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}
