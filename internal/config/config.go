// Package config reads confhist settings from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/pders01/confhist/internal/diff"
	"github.com/pders01/confhist/internal/logger"
	"github.com/pders01/confhist/internal/ollama"
	"github.com/pders01/confhist/internal/retention"
)

// EnvPrefix prefixes environment overrides, e.g. CONFHIST_HISTORY_ROOT
const EnvPrefix = "CONFHIST"

// DefaultExcludePattern matches system files that change on their own
const DefaultExcludePattern = `queue\.xml|nodeMonitors\.xml|UpdateCenter\.xml|global-build-stats|LockableResourcesManager\.xml|MilestoneStep`

// File is the on-disk layout of config.toml
type File struct {
	History    HistorySection    `toml:"history"`
	Retention  RetentionSection  `toml:"retention"`
	Ingest     IngestSection     `toml:"ingest"`
	Diff       DiffSection       `toml:"diff"`
	Embeddings EmbeddingsSection `toml:"embeddings"`
	Search     SearchSection     `toml:"search"`
	Log        logger.Config     `toml:"log"`
}

type HistorySection struct {
	Root string `toml:"root"`
}

type RetentionSection struct {
	MaxRevisions int    `toml:"max_revisions"`
	MaxAge       string `toml:"max_age"`
	AutoPrune    bool   `toml:"auto_prune"`
}

type IngestSection struct {
	SkipDuplicates bool     `toml:"skip_duplicates"`
	ExcludedUsers  []string `toml:"excluded_users"`
	ExcludePattern string   `toml:"exclude_pattern"`
}

type DiffSection struct {
	Context int `toml:"context"`
}

type EmbeddingsSection struct {
	Enabled   bool   `toml:"enabled"`
	Model     string `toml:"model"`
	OllamaURL string `toml:"ollama_url"`
}

type SearchSection struct {
	KeywordWeight  float64 `toml:"keyword_weight"`
	SemanticWeight float64 `toml:"semantic_weight"`
}

// Default returns the built-in configuration
func Default() File {
	return File{
		History: HistorySection{Root: DefaultRoot()},
		Ingest: IngestSection{
			SkipDuplicates: true,
			ExcludedUsers:  []string{},
			ExcludePattern: DefaultExcludePattern,
		},
		Diff: DiffSection{Context: diff.DefaultContext},
		Embeddings: EmbeddingsSection{
			Enabled:   true,
			Model:     ollama.DefaultModel,
			OllamaURL: ollama.DefaultURL,
		},
		Search: SearchSection{KeywordWeight: 0.3, SemanticWeight: 0.7},
		Log:    *logger.DefaultConfig(),
	}
}

// SetDefaults registers Default with viper
func SetDefaults() {
	d := Default()
	viper.SetDefault("history.root", d.History.Root)
	viper.SetDefault("retention.max_revisions", d.Retention.MaxRevisions)
	viper.SetDefault("retention.max_age", d.Retention.MaxAge)
	viper.SetDefault("retention.auto_prune", d.Retention.AutoPrune)
	viper.SetDefault("ingest.skip_duplicates", d.Ingest.SkipDuplicates)
	viper.SetDefault("ingest.excluded_users", d.Ingest.ExcludedUsers)
	viper.SetDefault("ingest.exclude_pattern", d.Ingest.ExcludePattern)
	viper.SetDefault("diff.context", d.Diff.Context)
	viper.SetDefault("embeddings.enabled", d.Embeddings.Enabled)
	viper.SetDefault("embeddings.model", d.Embeddings.Model)
	viper.SetDefault("embeddings.ollama_url", d.Embeddings.OllamaURL)
	viper.SetDefault("search.keyword_weight", d.Search.KeywordWeight)
	viper.SetDefault("search.semantic_weight", d.Search.SemanticWeight)
	viper.SetDefault("log.file", d.Log.File)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.max_size", d.Log.MaxSize)
	viper.SetDefault("log.max_backups", d.Log.MaxBackups)
	viper.SetDefault("log.max_age", d.Log.MaxAge)
	viper.SetDefault("log.compress", d.Log.Compress)
}

// DefaultRoot is where history lives when history.root is unset
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".confhist"
	}
	return filepath.Join(home, ".local", "share", "confhist")
}

// Dir returns $HOME/.config/confhist
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "confhist"), nil
}

// WriteDefault writes the default configuration to path. An existing file
// is left untouched and reported with created=false.
func WriteDefault(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GetRoot returns the history root with a leading ~ expanded
func GetRoot() string {
	root := viper.GetString("history.root")
	if root == "" {
		return DefaultRoot()
	}
	if root == "~" || strings.HasPrefix(root, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			root = filepath.Join(home, strings.TrimPrefix(root, "~"))
		}
	}
	return root
}

// GetRetentionPolicy returns the configured policy; the zero policy keeps
// everything
func GetRetentionPolicy() (retention.Policy, error) {
	age, err := ParseAge(viper.GetString("retention.max_age"))
	if err != nil {
		return retention.Policy{}, err
	}
	policy := retention.Policy{
		MaxRevisions: viper.GetInt("retention.max_revisions"),
		MaxAge:       age,
	}
	if err := policy.Validate(); err != nil {
		return retention.Policy{}, err
	}
	return policy, nil
}

// ParseAge accepts Go durations plus a days suffix, e.g. "90d"
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid max age %q", retention.ErrInvalidPolicy, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid max age %q", retention.ErrInvalidPolicy, s)
	}
	return d, nil
}

func GetAutoPrune() bool {
	return viper.GetBool("retention.auto_prune")
}

func GetSkipDuplicates() bool {
	return viper.GetBool("ingest.skip_duplicates")
}

func GetExcludedUsers() []string {
	return viper.GetStringSlice("ingest.excluded_users")
}

// GetExcludePattern compiles ingest.exclude_pattern; empty disables it
func GetExcludePattern() (*regexp.Regexp, error) {
	pattern := viper.GetString("ingest.exclude_pattern")
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return re, nil
}

func GetDiffContext() int {
	return viper.GetInt("diff.context")
}

func GetEmbeddingsEnabled() bool {
	return viper.GetBool("embeddings.enabled")
}

func GetEmbeddingModel() string {
	return viper.GetString("embeddings.model")
}

func GetOllamaURL() string {
	return viper.GetString("embeddings.ollama_url")
}

func GetKeywordWeight() float64 {
	return viper.GetFloat64("search.keyword_weight")
}

func GetSemanticWeight() float64 {
	return viper.GetFloat64("search.semantic_weight")
}

// GetLogConfig returns the [log] section
func GetLogConfig() (*logger.Config, error) {
	cfg := logger.DefaultConfig()
	if err := viper.UnmarshalKey("log", cfg); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	return cfg, nil
}
