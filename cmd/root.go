package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/ingest"
	"github.com/pders01/confhist/internal/logger"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/retention"
)

var cfgFile string

// out receives user-facing output; tests replace it
var out io.Writer = os.Stdout

var appLogger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "confhist",
	Short: "Configuration history for jobs and system configuration files",
	Long: `confhist keeps an append-only history of configuration changes:
  - an immutable snapshot per create, change, rename and delete
  - who made the change and when
  - unified diffs between any two revisions of the same entity
  - retention by revision count and age

Entities are jobs (job:<name>, or a bare name) and system configuration
files (system:<file>).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/confhist/config.toml)")
	rootCmd.PersistentFlags().String("root", "", "history root directory")
	viper.BindPFlag("history.root", rootCmd.PersistentFlags().Lookup("root"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults()

	if err := viper.ReadInConfig(); err == nil {
		getLogger().Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}

// getLogger builds the logger from the [log] section on first use
func getLogger() *zap.Logger {
	if appLogger != nil {
		return appLogger
	}
	cfg, err := config.GetLogConfig()
	if err == nil {
		appLogger, err = logger.New(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		appLogger = zap.NewNop()
	}
	return appLogger
}

func openStore() (*history.Store, error) {
	store, err := history.New(config.GetRoot(), history.WithLogger(getLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open history at %s: %w", config.GetRoot(), err)
	}
	return store, nil
}

// newTracker wires the ingestion filters and auto-prune policy from config
func newTracker(store *history.Store) (*ingest.Tracker, error) {
	policy, err := config.GetRetentionPolicy()
	if err != nil {
		return nil, err
	}
	pattern, err := config.GetExcludePattern()
	if err != nil {
		return nil, err
	}
	opts := ingest.Options{
		ExcludedUsers:  config.GetExcludedUsers(),
		ExcludePattern: pattern,
		SkipDuplicates: config.GetSkipDuplicates(),
		AutoPrune:      config.GetAutoPrune(),
		Policy:         policy,
	}
	return ingest.NewTracker(store, retention.NewManager(store, getLogger()), opts, getLogger())
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// emit writes v as JSON or toon when one of the flags is set and reports
// whether it did
func emit(v any, asJSON, asToon bool) (bool, error) {
	switch {
	case asJSON:
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return true, nil
	case asToon:
		output, err := gotoon.Encode(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Fprintln(out, output)
		return true, nil
	}
	return false, nil
}

// resolveRevision accepts an identifier, "latest", or an index counted from
// the oldest (0) or from the newest (-1)
func resolveRevision(ctx context.Context, store *history.Store, entity models.Entity, ref string) (models.Revision, error) {
	var (
		rev models.Revision
		ok  bool
		err error
	)
	switch {
	case ref == "" || ref == "latest":
		rev, ok, err = store.Latest(ctx, entity)
	case isIndex(ref):
		n, _ := strconv.Atoi(ref)
		rev, ok, err = store.Nth(ctx, entity, n)
	default:
		rev, ok, err = store.Find(ctx, entity, ref)
	}
	if err != nil {
		return models.Revision{}, err
	}
	if !ok {
		if ref == "" {
			ref = "latest"
		}
		return models.Revision{}, fmt.Errorf("%w: %s@%s", history.ErrNotFound, entity, ref)
	}
	return rev, nil
}

// Identifiers are 15+ characters, indexes are short
func isIndex(ref string) bool {
	if len(ref) > 6 {
		return false
	}
	_, err := strconv.Atoi(ref)
	return err == nil
}

// readContent reads --file, or stdin when path is "-"
func readContent(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func displayName(rev models.Revision) string {
	if rev.EntityName != "" {
		return rev.EntityName
	}
	return rev.Entity.Name
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
