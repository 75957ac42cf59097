package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/testutil"
)

// setupTest points the commands at a fresh history root and captures output
func setupTest(t *testing.T) *bytes.Buffer {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	config.SetDefaults()
	viper.Set("history.root", filepath.Join(t.TempDir(), "history"))
	viper.Set("embeddings.enabled", false)

	appLogger = zap.NewNop()
	buf := &bytes.Buffer{}
	out = buf
	resetFlags()

	t.Cleanup(func() {
		out = os.Stdout
		appLogger = nil
		viper.Reset()
	})
	return buf
}

func resetFlags() {
	recordFile, recordOp, recordUser, recordUserID = "", "", "", ""
	renameFile, renameUser, renameUserID = "", "", ""
	listKind, listSince, listUser, listJSON, listToon = "", "", "", false, false
	showRaw, showVerify, showJSON, showToon = false, false, false, false
	diffContext, diffStat, diffJSON, diffToon = -1, false, false, false
	deleteAll, deleteForce = false, false
	pruneMaxRevisions, pruneMaxAge, pruneDryRun, pruneForce, pruneJSON, pruneToon = 0, "", true, false, false, false
	searchKind, searchAll, searchLimit, searchJSON, searchToon, searchNoEmbed = "", false, 10, false, false, true
	statsJSON, statsToon = false, false
}

// recordContent records content for ref as a named user
func recordContent(t *testing.T, ref, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.xml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write content: %v", err)
	}

	recordFile, recordOp, recordUser, recordUserID = path, "", "Alice", "alice"
	defer func() { recordFile, recordUser, recordUserID = "", "", "" }()

	if err := runRecord(nil, []string{ref}); err != nil {
		t.Fatalf("record command failed: %v", err)
	}
}

func testStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := openStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func revisionsOf(t *testing.T, entity models.Entity) []models.Revision {
	t.Helper()
	revs, err := testStore(t).ListRevisions(context.Background(), entity)
	if err != nil {
		t.Fatalf("failed to list revisions: %v", err)
	}
	return revs
}

func readRevision(t *testing.T, rev models.Revision) string {
	t.Helper()
	return testutil.ReadFile(t, rev.SnapshotPath)
}
