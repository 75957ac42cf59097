package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/ingest"
	"github.com/pders01/confhist/internal/models"
)

var (
	renameFile   string
	renameUser   string
	renameUserID string
)

var renameCmd = &cobra.Command{
	Use:   "rename <from> <to>",
	Short: "Move an entity's history to a new name",
	Long: `Record a rename. The whole history moves to the new name and a
"renamed" revision is appended under it. Renaming onto a name that already
has history is refused.

Without --file the content of the latest revision is carried over.

Example:
  confhist rename site-A site-B --user Alice --user-id alice`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)

	renameCmd.Flags().StringVarP(&renameFile, "file", "f", "", "File with the content after the rename (- for stdin)")
	renameCmd.Flags().StringVar(&renameUser, "user", "", "Display name of the user (default SYSTEM)")
	renameCmd.Flags().StringVar(&renameUserID, "user-id", "", "Stable id of the user")
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	from, err := models.ParseEntityRef(args[0])
	if err != nil {
		return err
	}
	to, err := models.ParseEntityRef(args[1])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	tracker, err := newTracker(store)
	if err != nil {
		return err
	}

	var content []byte
	if renameFile != "" {
		if content, err = readContent(renameFile); err != nil {
			return err
		}
	} else {
		latest, ok, err := store.Latest(ctx, from)
		if err != nil {
			return err
		}
		if ok {
			rc, err := store.Open(latest)
			if err != nil {
				return err
			}
			content, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("failed to read latest snapshot of %s: %w", from, err)
			}
		}
	}

	rev, err := tracker.NotifyRename(ctx, from, to, models.User{Name: renameUser, ID: renameUserID}, content)
	if errors.Is(err, ingest.ErrSkipped) {
		fmt.Fprintf(out, "Skipped: %v\n", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}

	fmt.Fprintf(out, "✓ Renamed %s to %s\n", from, to)
	fmt.Fprintf(out, "  Revision: %s\n", rev.Identifier)
	return nil
}
