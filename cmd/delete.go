package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/models"
)

var (
	deleteAll   bool
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <entity> [revision]",
	Short: "Delete one revision or the whole history of an entity",
	Long: `Delete a single revision, removing its metadata and snapshot together,
or with --all the entire history of the entity.

Deleting is permanent; --force is required.

Examples:
  confhist delete site-A 20240501_100000 --force
  confhist delete site-A --all --force`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every revision of the entity")
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Actually delete")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	entity, err := models.ParseEntityRef(args[0])
	if err != nil {
		return err
	}
	if deleteAll == (len(args) == 2) {
		return fmt.Errorf("give either a revision or --all")
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	if deleteAll {
		revs, err := store.ListRevisions(ctx, entity)
		if err != nil {
			return err
		}
		if !deleteForce {
			fmt.Fprintf(out, "Would delete %d revision%s of %s. Use --force to delete.\n", len(revs), plural(len(revs), "", "s"), entity)
			return nil
		}
		if err := store.Purge(ctx, entity); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Deleted history of %s (%d revision%s)\n", entity, len(revs), plural(len(revs), "", "s"))
		return nil
	}

	rev, err := resolveRevision(ctx, store, entity, args[1])
	if err != nil {
		return err
	}
	if !deleteForce {
		fmt.Fprintf(out, "Would delete %s@%s (%s). Use --force to delete.\n", entity, rev.Identifier, rev.Operation)
		return nil
	}
	if err := store.Delete(ctx, entity, rev.Identifier); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Deleted %s@%s\n", entity, rev.Identifier)
	return nil
}
