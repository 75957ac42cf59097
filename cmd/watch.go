package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/watch"
)

var (
	watchPatterns []string
	watchDebounce time.Duration
	watchUser     string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Record changes to configuration files as they happen",
	Long: `Watch directories and record every matching file as a system
configuration entity. New files are recorded as created, writes as changed
and removals as deleted.

Writes are debounced so a burst of events produces one revision. Runs until
interrupted.

Examples:
  confhist watch /var/lib/jenkins
  confhist watch --pattern '*.xml' --pattern '*.yaml' /etc/ci`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVar(&watchPatterns, "pattern", []string{"*.xml"}, "File name glob to record (repeatable)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a write is recorded")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "User recorded for observed changes (default SYSTEM)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	for _, dir := range args {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("cannot watch %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("cannot watch %s: not a directory", dir)
		}
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	tracker, err := newTracker(store)
	if err != nil {
		return err
	}

	user := models.SystemUser
	if watchUser != "" {
		user = models.User{Name: watchUser, ID: watchUser}
	}

	w, err := watch.New(args, tracker, store, watch.Options{
		Patterns: watchPatterns,
		Debounce: watchDebounce,
		User:     user,
	}, getLogger())
	if err != nil {
		return err
	}
	w.Recorded = func(rev models.Revision) {
		fmt.Fprintf(out, "%s  %-8s %s\n", rev.Identifier, rev.Operation, rev.Entity)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Watching %d director%s (Ctrl-C to stop)\n", len(args), plural(len(args), "y", "ies"))
	return w.Run(ctx)
}
