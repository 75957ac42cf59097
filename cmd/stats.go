package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/embeddings"
	"github.com/pders01/confhist/internal/models"
)

var (
	statsJSON bool
	statsToon bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	Long: `Display statistics about the recorded history including:
  - Entity and revision counts by kind
  - Revisions by operation
  - Most active users and entities
  - Timeline distribution
  - Snapshot storage and embedding cache size

Examples:
  confhist stats
  confhist stats --json
  confhist stats --toon`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	statsCmd.Flags().BoolVar(&statsToon, "toon", false, "Output in LLM-friendly toon format")
}

type historyStats struct {
	Entities        int            `json:"entities"`
	Jobs            int            `json:"jobs"`
	SystemConfigs   int            `json:"system_configs"`
	TotalRevisions  int            `json:"total_revisions"`
	TotalBytes      int64          `json:"total_bytes"`
	ByOperation     map[string]int `json:"by_operation"`
	ByUser          map[string]int `json:"by_user"`
	ByDate          map[string]int `json:"by_date"`
	CachedEmbedding int            `json:"cached_embeddings"`
	OldestRevision  *time.Time     `json:"oldest_revision,omitempty"`
	NewestRevision  *time.Time     `json:"newest_revision,omitempty"`
	TopUsers        []countStat    `json:"top_users"`
	TopEntities     []countStat    `json:"top_entities"`
	DailyActivity   []countStat    `json:"daily_activity"`
}

type countStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	store, err := openStore()
	if err != nil {
		return err
	}
	entities, err := store.AllEntities(ctx)
	if err != nil {
		return err
	}

	// Each entity's history is read independently
	histories := make([][]models.Revision, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, e := range entities {
		g.Go(func() error {
			revs, err := store.ListRevisions(gctx, e)
			if err != nil {
				return fmt.Errorf("failed to read history of %s: %w", e, err)
			}
			histories[i] = revs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := &historyStats{
		Entities:    len(entities),
		ByOperation: make(map[string]int),
		ByUser:      make(map[string]int),
		ByDate:      make(map[string]int),
	}

	for i, e := range entities {
		revs := histories[i]
		if e.IsJob() {
			stats.Jobs++
		} else {
			stats.SystemConfigs++
		}
		stats.TotalRevisions += len(revs)
		stats.TopEntities = append(stats.TopEntities, countStat{Name: e.String(), Count: len(revs)})

		for _, rev := range revs {
			stats.TotalBytes += rev.Size
			stats.ByOperation[string(rev.Operation)]++
			stats.ByUser[rev.User.ID]++

			ts, err := rev.Timestamp()
			if err != nil {
				continue
			}
			stats.ByDate[ts.Format("2006-01-02")]++
			if stats.OldestRevision == nil || ts.Before(*stats.OldestRevision) {
				t := ts
				stats.OldestRevision = &t
			}
			if stats.NewestRevision == nil || ts.After(*stats.NewestRevision) {
				t := ts
				stats.NewestRevision = &t
			}
		}
	}

	if cache, err := embeddings.NewCache(config.GetRoot()); err == nil {
		stats.CachedEmbedding, _ = cache.Len()
	}

	for user, count := range stats.ByUser {
		stats.TopUsers = append(stats.TopUsers, countStat{Name: user, Count: count})
	}
	sortCounts(stats.TopUsers)
	sortCounts(stats.TopEntities)

	for date, count := range stats.ByDate {
		stats.DailyActivity = append(stats.DailyActivity, countStat{Name: date, Count: count})
	}
	sort.Slice(stats.DailyActivity, func(i, j int) bool {
		return stats.DailyActivity[i].Name > stats.DailyActivity[j].Name
	})

	if handled, err := emit(stats, statsJSON, statsToon); handled {
		return err
	}

	fmt.Fprintln(out, "History Statistics")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Entities:        %d (%d jobs, %d system configs)\n", stats.Entities, stats.Jobs, stats.SystemConfigs)
	fmt.Fprintf(out, "Revisions:       %d\n", stats.TotalRevisions)
	fmt.Fprintf(out, "Snapshot data:   %s\n", formatSize(stats.TotalBytes))
	if stats.OldestRevision != nil && stats.NewestRevision != nil {
		fmt.Fprintf(out, "Date Range:      %s to %s\n",
			stats.OldestRevision.Format("2006-01-02"),
			stats.NewestRevision.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "Embeddings:      %d cached\n", stats.CachedEmbedding)
	fmt.Fprintln(out)

	if stats.TotalRevisions == 0 {
		return nil
	}

	fmt.Fprintln(out, "By Operation:")
	for _, op := range []models.Operation{models.OpCreated, models.OpChanged, models.OpRenamed, models.OpDeleted} {
		if count, ok := stats.ByOperation[string(op)]; ok {
			percentage := float64(count) / float64(stats.TotalRevisions) * 100
			fmt.Fprintf(out, "  %-10s %4d  (%.1f%%)\n", op, count, percentage)
		}
	}
	fmt.Fprintln(out)

	printTop("Top Users:", stats.TopUsers, 10)
	printTop("Most Changed:", stats.TopEntities, 10)

	if len(stats.DailyActivity) > 0 {
		fmt.Fprintln(out, "Recent Activity:")
		for _, da := range stats.DailyActivity[:min(7, len(stats.DailyActivity))] {
			fmt.Fprintf(out, "  %s  %4d  %s\n", da.Name, da.Count, strings.Repeat("█", min(da.Count, 20)))
		}
	}

	return nil
}

func sortCounts(s []countStat) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Name < s[j].Name
	})
}

func printTop(title string, s []countStat, limit int) {
	if len(s) == 0 {
		return
	}
	fmt.Fprintln(out, title)
	for _, c := range s[:min(limit, len(s))] {
		fmt.Fprintf(out, "  %-30s %4d\n", c.Name, c.Count)
	}
	fmt.Fprintln(out)
}
