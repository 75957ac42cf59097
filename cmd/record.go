package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/ingest"
	"github.com/pders01/confhist/internal/models"
)

var (
	recordFile   string
	recordOp     string
	recordUser   string
	recordUserID string
)

var recordCmd = &cobra.Command{
	Use:   "record <entity>",
	Short: "Record a configuration change",
	Long: `Record a new revision of a job or system configuration file.

The operation defaults to "created" for an entity without history (or whose
last revision is a delete) and "changed" otherwise. Changes by excluded users,
system files matching the exclude pattern, and unchanged content are skipped
according to the [ingest] config section.

Examples:
  confhist record site-A --file config.xml --user "Alice" --user-id alice
  confhist record system:hudson.tasks.Maven.xml --file - < Maven.xml
  confhist record site-A --op deleted`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "", "File with the new content (- for stdin)")
	recordCmd.Flags().StringVar(&recordOp, "op", "", "Operation: created, changed or deleted")
	recordCmd.Flags().StringVar(&recordUser, "user", "", "Display name of the user (default SYSTEM)")
	recordCmd.Flags().StringVar(&recordUserID, "user-id", "", "Stable id of the user")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	entity, err := models.ParseEntityRef(args[0])
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

	var op models.Operation
	if recordOp != "" {
		op, err = models.ParseOperation(recordOp)
		if err != nil {
			return err
		}
		if op == models.OpRenamed {
			return fmt.Errorf("use 'confhist rename' to record a rename")
		}
	} else {
		latest, ok, err := store.Latest(ctx, entity)
		if err != nil {
			return err
		}
		op = models.OpChanged
		if !ok || latest.Operation == models.OpDeleted {
			op = models.OpCreated
		}
	}

	var content []byte
	switch {
	case recordFile != "":
		content, err = readContent(recordFile)
		if err != nil {
			return err
		}
	case op != models.OpDeleted:
		return fmt.Errorf("--file is required for %s", op)
	}

	rev, err := tracker.NotifyChange(ctx, entity, op, models.User{Name: recordUser, ID: recordUserID}, content)
	if errors.Is(err, ingest.ErrSkipped) {
		fmt.Fprintf(out, "Skipped: %v\n", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", entity, err)
	}

	fmt.Fprintf(out, "✓ Recorded %s of %s\n", rev.Operation, entity)
	fmt.Fprintf(out, "  Revision: %s\n", rev.Identifier)
	fmt.Fprintf(out, "  User:     %s (%s)\n", rev.User.Name, rev.User.ID)
	fmt.Fprintf(out, "  Snapshot: %s\n", rev.SnapshotPath)
	return nil
}
