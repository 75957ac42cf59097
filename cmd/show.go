package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
)

var (
	showRaw    bool
	showVerify bool
	showJSON   bool
	showToon   bool
)

var showCmd = &cobra.Command{
	Use:   "show <entity> [revision]",
	Short: "Show one revision and its snapshot",
	Long: `Show the metadata and content of a revision. The revision is an
identifier, "latest" (the default), or an index: 0 is the oldest revision and
negative indexes count back from the newest.

Examples:
  confhist show site-A
  confhist show site-A 20240501_100000
  confhist show site-A -- -2
  confhist show system:config.xml --raw > config.xml
  confhist show site-A --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print only the snapshot content")
	showCmd.Flags().BoolVar(&showVerify, "verify", false, "Check the snapshot against its recorded checksum")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the exported projection as JSON")
	showCmd.Flags().BoolVar(&showToon, "toon", false, "Output in LLM-friendly toon format")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	entity, err := models.ParseEntityRef(args[0])
	if err != nil {
		return err
	}
	ref := ""
	if len(args) == 2 {
		ref = args[1]
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	rev, err := resolveRevision(ctx, store, entity, ref)
	if err != nil {
		return err
	}

	if showVerify {
		if err := store.Verify(rev); err != nil {
			if errors.Is(err, history.ErrCorruptSnapshot) {
				return fmt.Errorf("snapshot of %s@%s is corrupt: %w", entity, rev.Identifier, err)
			}
			return err
		}
	}

	if showJSON || showToon {
		info, err := store.Project(rev)
		if err != nil {
			return err
		}
		_, err = emit(info, showJSON, showToon)
		return err
	}

	rc, err := store.Open(rev)
	if err != nil {
		return err
	}
	defer rc.Close()

	if showRaw {
		_, err := io.Copy(out, rc)
		return err
	}

	fmt.Fprintf(out, "Revision:  %s\n", rev.Identifier)
	fmt.Fprintf(out, "Entity:    %s\n", entity)
	fmt.Fprintf(out, "Name:      %s\n", displayName(rev))
	fmt.Fprintf(out, "Operation: %s\n", rev.Operation)
	fmt.Fprintf(out, "User:      %s (%s)\n", rev.User.Name, rev.User.ID)
	if !rev.RecordedAt.IsZero() {
		fmt.Fprintf(out, "Recorded:  %s\n", rev.RecordedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(out, "Size:      %s\n", formatSize(rev.Size))
	if rev.Checksum != "" {
		fmt.Fprintf(out, "SHA-256:   %s\n", rev.Checksum)
	}
	if showVerify {
		fmt.Fprintln(out, "Verified:  ✓")
	}
	fmt.Fprintf(out, "Snapshot:  %s\n", rev.SnapshotPath)
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━")
	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}
