package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/diff"
	"github.com/pders01/confhist/internal/models"
)

var (
	diffContext int
	diffStat    bool
	diffJSON    bool
	diffToon    bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <entity> [from] [to]",
	Short: "Compare two revisions of an entity",
	Long: `Show a unified diff between two revisions of the same entity.

Revisions are identifiers, "latest", or indexes as in 'confhist show'.
Without revisions the previous revision is compared with the latest; with one
revision it is compared with the latest.

Examples:
  confhist diff site-A
  confhist diff site-A 20240501_100000
  confhist diff site-A 0 latest --context 10
  confhist diff site-A --stat`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().IntVarP(&diffContext, "context", "U", -1, "Lines of context (default from config)")
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "Only show the change summary")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Output as JSON")
	diffCmd.Flags().BoolVar(&diffToon, "toon", false, "Output in LLM-friendly toon format")
}

type diffSummary struct {
	Entity    string `json:"entity"`
	From      string `json:"from"`
	To        string `json:"to"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	Hunks     int    `json:"hunks"`
	Unified   string `json:"unified"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	entity, err := models.ParseEntityRef(args[0])
	if err != nil {
		return err
	}

	fromRef, toRef := "-2", "latest"
	switch len(args) {
	case 2:
		fromRef = args[1]
	case 3:
		fromRef, toRef = args[1], args[2]
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	from, err := resolveRevision(ctx, store, entity, fromRef)
	if err != nil {
		if len(args) == 1 {
			return fmt.Errorf("%s needs at least two revisions to compare: %w", entity, err)
		}
		return err
	}
	to, err := resolveRevision(ctx, store, entity, toRef)
	if err != nil {
		return err
	}

	contextLines := diffContext
	if contextLines < 0 {
		contextLines = config.GetDiffContext()
	}

	engine := diff.NewEngine(store, contextLines, getLogger())
	result, err := engine.Compare(ctx, from, to)
	if err != nil {
		return err
	}

	summary := diffSummary{
		Entity:    entity.String(),
		From:      from.Identifier,
		To:        to.Identifier,
		Added:     result.Added,
		Removed:   result.Removed,
		Unchanged: result.Unchanged,
		Hunks:     len(result.Hunks),
		Unified:   result.Unified,
	}
	if handled, err := emit(summary, diffJSON, diffToon); handled {
		return err
	}

	if result.Identical() {
		fmt.Fprintf(out, "No differences between %s and %s\n", from.Identifier, to.Identifier)
		return nil
	}

	if !diffStat {
		fmt.Fprintln(out, result.Unified)
	}
	fmt.Fprintf(out, "%s..%s: %d insertion%s(+), %d deletion%s(-), %d hunk%s\n",
		from.Identifier, to.Identifier,
		result.Added, plural(result.Added, "", "s"),
		result.Removed, plural(result.Removed, "", "s"),
		len(result.Hunks), plural(len(result.Hunks), "", "s"))
	return nil
}
