package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pders01/confhist/internal/models"
)

func TestSearchNoHistory(t *testing.T) {
	buf := setupTest(t)

	if err := runSearch(nil, []string{"test query"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No snapshots match") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestSearchWithResults(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<scm class=\"hudson.plugins.git.GitSCM\"/>")
	recordContent(t, "site-B", "<builders><maven/></builders>")

	searchJSON = true
	if err := runSearch(nil, []string{"gitscm"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}

	var results []searchResult
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(results) != 1 || results[0].Entity != "job:site-A" {
		t.Fatalf("expected only site-A, got %+v", results)
	}
	if results[0].UsedSemantic {
		t.Error("semantic search should be disabled")
	}
	if !strings.Contains(results[0].Match, "GitSCM") {
		t.Errorf("unexpected match line %q", results[0].Match)
	}
}

func TestSearchRanksNameMatches(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "nightly-build", "<project/>")
	recordContent(t, "site-A", "<description>nightly</description>")

	searchJSON = true
	if err := runSearch(nil, []string{"nightly"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}

	var results []searchResult
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Entity != "job:nightly-build" {
		t.Errorf("expected the name match first, got %s", results[0].Entity)
	}
}

func TestSearchLatestOnly(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<old-marker/>")
	recordContent(t, "site-A", "<config/>")

	searchJSON = true
	if err := runSearch(nil, []string{"old-marker"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected no results from latest revisions, got %s", buf.String())
	}

	buf.Reset()
	searchAll = true
	if err := runSearch(nil, []string{"old-marker"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}
	var results []searchResult
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the old revision with --all, got %d results", len(results))
	}
}

func TestSearchSkipsDeleted(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<marker/>")
	recordOp = string(models.OpDeleted)
	if err := runRecord(nil, []string{"site-A"}); err != nil {
		t.Fatalf("record delete failed: %v", err)
	}
	recordOp = ""
	buf.Reset()

	if err := runSearch(nil, []string{"marker"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No snapshots match") {
		t.Errorf("deleted entity should not match:\n%s", buf.String())
	}
}

func TestSearchKindFilter(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<shared/>")
	recordContent(t, "system:hudson.tasks.Maven.xml", "<shared/>")

	searchKind = "system"
	searchJSON = true
	if err := runSearch(nil, []string{"shared"}); err != nil {
		t.Fatalf("search command failed: %v", err)
	}
	var results []searchResult
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(results) != 1 || !strings.HasPrefix(results[0].Entity, "system:") {
		t.Errorf("expected only the system config, got %+v", results)
	}

	searchKind = "folder"
	if err := runSearch(nil, []string{"shared"}); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestCalculateRelevance(t *testing.T) {
	rev := models.Revision{
		Entity: models.Job("security-scan"),
		User:   models.User{Name: "Alice", ID: "alice"},
	}

	tests := []struct {
		name    string
		words   []string
		content string
		want    int
	}{
		{"no match", []string{"maven"}, "<config/>", 0},
		{"content occurrences", []string{"git"}, "git git", 20},
		{"name bonus", []string{"security"}, "", 50},
		{"user bonus", []string{"alice"}, "", 30},
		{"combined", []string{"scan", "git"}, "git", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRelevance(tt.words, rev, tt.content); got != tt.want {
				t.Errorf("calculateRelevance() = %d, want %d", got, tt.want)
			}
		})
	}
}
