package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/retention"
)

var (
	pruneMaxRevisions int
	pruneMaxAge       string
	pruneDryRun       bool
	pruneForce        bool
	pruneJSON         bool
	pruneToon         bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune [entity]",
	Short: "Remove old revisions based on retention policy",
	Long: `Remove revisions beyond the retention policy, oldest first. The
newest revision of an entity is never removed.

The retention policy is configured in ~/.config/confhist/config.toml:
  [retention]
  max_revisions = 50
  max_age = "90d"

Flags override the configured policy.

Example:
  confhist prune                        # Show what would be pruned
  confhist prune site-A --max-revisions 2 --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneMaxRevisions, "max-revisions", 0, "Keep at most this many revisions per entity")
	pruneCmd.Flags().StringVar(&pruneMaxAge, "max-age", "", "Remove revisions older than this (e.g. 90d, 720h)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", true, "Show what would be pruned without deleting")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "Actually delete revisions (overrides dry-run)")
	pruneCmd.Flags().BoolVar(&pruneJSON, "json", false, "Output as JSON")
	pruneCmd.Flags().BoolVar(&pruneToon, "toon", false, "Output in LLM-friendly toon format")
}

type pruneEntry struct {
	Entity  string   `json:"entity"`
	Pruned  []string `json:"pruned"`
	Failed  []string `json:"failed,omitempty"`
	Kept    int      `json:"kept"`
	Applied bool     `json:"applied"`
}

func prunePolicy() (retention.Policy, error) {
	policy, err := config.GetRetentionPolicy()
	if err != nil {
		return policy, err
	}
	if pruneMaxRevisions != 0 {
		policy.MaxRevisions = pruneMaxRevisions
	}
	if pruneMaxAge != "" {
		age, err := config.ParseAge(pruneMaxAge)
		if err != nil {
			return policy, err
		}
		policy.MaxAge = age
	}
	return policy, policy.Validate()
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	policy, err := prunePolicy()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	var entities []models.Entity
	if len(args) == 1 {
		entity, err := models.ParseEntityRef(args[0])
		if err != nil {
			return err
		}
		entities = []models.Entity{entity}
	} else {
		entities, err = store.AllEntities(ctx)
		if err != nil {
			return err
		}
	}

	apply := pruneForce || !pruneDryRun
	quiet := pruneJSON || pruneToon
	if !quiet {
		fmt.Fprintf(out, "Retention policy: %s\n\n", policy)
	}
	if policy.IsZero() {
		if !quiet {
			fmt.Fprintln(out, "No retention policy configured; nothing to prune")
		}
		_, err := emit([]pruneEntry{}, pruneJSON, pruneToon)
		return err
	}

	manager := retention.NewManager(store, getLogger())
	now := time.Now()

	var entries []pruneEntry
	var failures int
	for _, entity := range entities {
		revs, err := store.ListRevisions(ctx, entity)
		if err != nil {
			return err
		}

		entry := pruneEntry{Entity: entity.String(), Applied: apply}
		if apply {
			report, err := manager.Prune(ctx, entity, policy)
			if report != nil {
				for _, rev := range report.Deleted {
					entry.Pruned = append(entry.Pruned, rev.Identifier)
				}
				for _, f := range report.Failed {
					entry.Failed = append(entry.Failed, f.Revision.Identifier)
				}
			}
			if err != nil {
				failures++
				getLogger().Warn("Prune incomplete", zap.String("entity", entity.Key()), zap.Error(err))
			}
		} else {
			for _, rev := range policy.Select(revs, now) {
				entry.Pruned = append(entry.Pruned, rev.Identifier)
			}
		}
		entry.Kept = len(revs) - len(entry.Pruned)
		if len(entry.Pruned) > 0 || len(entry.Failed) > 0 {
			entries = append(entries, entry)
		}
	}

	if entries == nil {
		entries = []pruneEntry{}
	}
	if handled, err := emit(entries, pruneJSON, pruneToon); handled {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No revisions to prune")
		return nil
	}

	total := 0
	for _, e := range entries {
		total += len(e.Pruned)
		fmt.Fprintf(out, "  %s\n", e.Entity)
		for _, id := range e.Pruned {
			fmt.Fprintf(out, "    - %s\n", id)
		}
		for _, id := range e.Failed {
			fmt.Fprintf(out, "    ! %s (failed)\n", id)
		}
		fmt.Fprintf(out, "    Keeping %d\n", e.Kept)
	}

	if apply {
		fmt.Fprintf(out, "\n✓ Pruned %d revision%s\n", total, plural(total, "", "s"))
		if failures > 0 {
			return fmt.Errorf("prune failed for %d entit%s", failures, plural(failures, "y", "ies"))
		}
	} else {
		fmt.Fprintf(out, "\n%d revision%s would be pruned. This is a dry run. Use --force to actually prune.\n", total, plural(total, "", "s"))
	}
	return nil
}
