package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pders01/confhist/internal/config"
)

func TestInitCommand(t *testing.T) {
	buf := setupTest(t)

	if err := runInit(nil, []string{}); err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	configDir, err := config.Dir()
	if err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(configDir, "config.toml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !strings.Contains(string(data), "[retention]") {
		t.Errorf("config file is missing the retention section:\n%s", data)
	}

	for _, dir := range []string{"jobs", "system"} {
		if _, err := os.Stat(filepath.Join(config.GetRoot(), dir)); err != nil {
			t.Errorf("history directory %s was not created: %v", dir, err)
		}
	}
	if !strings.Contains(buf.String(), "Created default config") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestInitKeepsExistingConfig(t *testing.T) {
	buf := setupTest(t)

	configDir, err := config.Dir()
	if err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(configDir, "config.toml")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := "[diff]\ncontext = 7\n"
	if err := os.WriteFile(configPath, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runInit(nil, []string{}); err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("existing config was overwritten:\n%s", data)
	}
	if !strings.Contains(buf.String(), "Config already exists") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
