package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
)

var (
	listKind  string
	listSince string
	listUser  string
	listJSON  bool
	listToon  bool
)

var listCmd = &cobra.Command{
	Use:   "list [entity]",
	Short: "List tracked entities or the revisions of one entity",
	Long: `Without an argument, list every entity that has history. With an
entity, list its revisions oldest first.

Examples:
  confhist list
  confhist list --kind system
  confhist list site-A
  confhist list site-A --since 2024-05-01 --user alice
  confhist list site-A --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listKind, "kind", "", "Only list entities of this kind (job or system)")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show revisions since date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listUser, "user", "", "Show revisions by this user id")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listToon, "toon", false, "Output in LLM-friendly toon format")
}

type entitySummary struct {
	Kind      models.EntityKind `json:"kind"`
	Name      string            `json:"name"`
	Revisions int               `json:"revisions"`
	Latest    string            `json:"latest,omitempty"`
	Operation models.Operation  `json:"operation,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		entity, err := models.ParseEntityRef(args[0])
		if err != nil {
			return err
		}
		return listRevisions(cmd, store, entity)
	}
	return listEntities(cmd, store)
}

func listEntities(cmd *cobra.Command, store *history.Store) error {
	ctx := commandContext(cmd)

	var entities []models.Entity
	var err error
	switch listKind {
	case "":
		entities, err = store.AllEntities(ctx)
	case string(models.KindJob), string(models.KindSystemConfig):
		entities, err = store.Entities(ctx, models.EntityKind(listKind))
	default:
		return fmt.Errorf("invalid --kind %q (use job or system)", listKind)
	}
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	summaries := make([]entitySummary, 0, len(entities))
	for _, e := range entities {
		revs, err := store.ListRevisions(ctx, e)
		if err != nil {
			return err
		}
		s := entitySummary{Kind: e.Kind, Name: e.Name, Revisions: len(revs)}
		if len(revs) > 0 {
			last := revs[len(revs)-1]
			s.Latest = last.Identifier
			s.Operation = last.Operation
		}
		summaries = append(summaries, s)
	}

	if handled, err := emit(summaries, listJSON, listToon); handled {
		return err
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No history found")
		return nil
	}

	fmt.Fprintf(out, "Found %d entit%s:\n\n", len(summaries), plural(len(summaries), "y", "ies"))
	for _, s := range summaries {
		fmt.Fprintf(out, "  %s:%s\n", s.Kind, s.Name)
		fmt.Fprintf(out, "    Revisions: %d\n", s.Revisions)
		if s.Latest != "" {
			fmt.Fprintf(out, "    Latest:    %s (%s)\n", s.Latest, s.Operation)
		}
	}
	return nil
}

func listRevisions(cmd *cobra.Command, store *history.Store, entity models.Entity) error {
	ctx := commandContext(cmd)

	var since time.Time
	if listSince != "" {
		var err error
		since, err = time.Parse("2006-01-02", listSince)
		if err != nil {
			return fmt.Errorf("invalid --since date format (use YYYY-MM-DD): %w", err)
		}
	}

	revs, err := store.ListRevisions(ctx, entity)
	if err != nil {
		return fmt.Errorf("failed to list revisions of %s: %w", entity, err)
	}

	var filtered []models.Revision
	for _, rev := range revs {
		if listUser != "" && rev.User.ID != listUser {
			continue
		}
		if !since.IsZero() {
			ts, err := rev.Timestamp()
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, rev)
	}

	if listJSON || listToon {
		infos, err := store.ProjectAll(filtered)
		if err != nil {
			return err
		}
		_, err = emit(infos, listJSON, listToon)
		return err
	}

	if len(filtered) == 0 {
		fmt.Fprintf(out, "No revisions of %s match\n", entity)
		return nil
	}

	fmt.Fprintf(out, "%s: %d revision%s\n\n", entity, len(filtered), plural(len(filtered), "", "s"))
	for _, rev := range filtered {
		fmt.Fprintf(out, "  %s  %-8s  %-20s  %s\n", rev.Identifier, rev.Operation, rev.User.ID, displayName(rev))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
