package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
)

func TestShowLatestAndByIndex(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<v1/>")
	recordContent(t, "site-A", "<v2/>")

	showRaw = true
	if err := runShow(nil, []string{"site-A"}); err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	if buf.String() != "<v2/>" {
		t.Errorf("expected latest content, got %q", buf.String())
	}

	buf.Reset()
	if err := runShow(nil, []string{"site-A", "0"}); err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	if buf.String() != "<v1/>" {
		t.Errorf("expected first revision, got %q", buf.String())
	}

	buf.Reset()
	if err := runShow(nil, []string{"site-A", "-2"}); err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	if buf.String() != "<v1/>" {
		t.Errorf("expected second newest revision, got %q", buf.String())
	}
}

func TestShowByIdentifier(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "site-A", "<v1/>")
	rev := revisionsOf(t, models.Job("site-A"))[0]

	showVerify = true
	if err := runShow(nil, []string{"site-A", rev.Identifier}); err != nil {
		t.Fatalf("show command failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{rev.Identifier, "created", "Alice (alice)", "Verified", "<v1/>"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestShowJSONProjection(t *testing.T) {
	buf := setupTest(t)

	recordContent(t, "folder/site-A", "<v1/>")

	showJSON = true
	if err := runShow(nil, []string{"folder/site-A"}); err != nil {
		t.Fatalf("show command failed: %v", err)
	}

	var info models.ConfigInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if info.Job != "folder/site-A" || !info.IsJob || info.UserID != "alice" {
		t.Errorf("unexpected projection %+v", info)
	}
	path, err := history.DecodeSnapshotPath(info.File)
	if err != nil {
		t.Fatalf("failed to decode file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("projected file does not exist: %v", err)
	}
}

func TestShowNotFound(t *testing.T) {
	setupTest(t)

	err := runShow(nil, []string{"site-A"})
	if !errors.Is(err, history.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	recordContent(t, "site-A", "<v1/>")
	err = runShow(nil, []string{"site-A", "20000101_000000"})
	if !errors.Is(err, history.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown identifier, got %v", err)
	}
	err = runShow(nil, []string{"site-A", "5"})
	if !errors.Is(err, history.ErrNotFound) {
		t.Errorf("expected ErrNotFound for out of range index, got %v", err)
	}
}

func TestShowVerifyDetectsCorruption(t *testing.T) {
	setupTest(t)

	recordContent(t, "site-A", "<v1/>")
	rev := revisionsOf(t, models.Job("site-A"))[0]
	if err := os.WriteFile(rev.SnapshotPath, []byte("<tampered/>"), 0644); err != nil {
		t.Fatal(err)
	}

	showVerify = true
	err := runShow(nil, []string{"site-A"})
	if !errors.Is(err, history.ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
}
