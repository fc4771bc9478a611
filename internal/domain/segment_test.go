package domain

import (
	"strings"
	"testing"
	"time"
)

// lookupPath resolves a dot-separated path against a nested payload map.
func lookupPath(t *testing.T, payload map[string]any, path string) (any, bool) {
	t.Helper()
	parts := strings.Split(path, ".")
	var cur any = payload
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func samplePayload() SegmentPayload {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return SegmentPayload{
		FileContext: FileContext{
			Path:       "internal/server/router.go",
			Language:   "go",
			Type:       "source",
			Repository: "https://github.com/acme/api",
			Branch:     "main",
			CommitSHA:  "a1b2c3d",
		},
		Filters: Filters{PatternTypes: []string{"api_handler"}},
		Commit: CommitInfo{
			SHA:       "a1b2c3d",
			Message:   "add router",
			Author:    "dev",
			Timestamp: ts,
		},
		IngestedAt: ts,
	}
}

func TestSegmentPayloadMap_IndexedPaths(t *testing.T) {
	m := samplePayload().PayloadMap()

	lang, ok := lookupPath(t, m, FieldLanguage)
	if !ok {
		t.Fatalf("path %q missing", FieldLanguage)
	}
	if lang != "go" {
		t.Errorf("%s = %v, want go", FieldLanguage, lang)
	}

	ft, ok := lookupPath(t, m, FieldFileType)
	if !ok {
		t.Fatalf("path %q missing", FieldFileType)
	}
	if ft != "source" {
		t.Errorf("%s = %v, want source", FieldFileType, ft)
	}

	patterns, ok := lookupPath(t, m, FieldPatternTypes)
	if !ok {
		t.Fatalf("path %q missing", FieldPatternTypes)
	}
	got, ok := patterns.([]string)
	if !ok {
		t.Fatalf("%s type = %T, want []string", FieldPatternTypes, patterns)
	}
	if len(got) != 1 || got[0] != "api_handler" {
		t.Errorf("%s = %v, want [api_handler]", FieldPatternTypes, got)
	}
}

func TestSegmentPayloadMap_Timestamps(t *testing.T) {
	m := samplePayload().PayloadMap()

	ingested, ok := m["ingested_at"].(string)
	if !ok {
		t.Fatalf("ingested_at type = %T, want string", m["ingested_at"])
	}
	if ingested != "2026-03-14T09:26:53Z" {
		t.Errorf("ingested_at = %q", ingested)
	}

	commitTS, ok := lookupPath(t, m, "commit.timestamp")
	if !ok {
		t.Fatal("path commit.timestamp missing")
	}
	if commitTS != "2026-03-14T09:26:53Z" {
		t.Errorf("commit.timestamp = %v", commitTS)
	}
}
