package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/config"
	"github.com/pders01/confhist/internal/embeddings"
	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/ollama"
)

var (
	searchKind    string
	searchAll     bool
	searchLimit   int
	searchJSON    bool
	searchToon    bool
	searchNoEmbed bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search snapshots using hybrid keyword and semantic search",
	Long: `Search snapshot content, entity names and users.

Only the latest revision of each entity is searched unless --all is given.
Deleted entities are skipped.

Combines keyword matching with semantic similarity when embeddings are
enabled and Ollama is reachable. Snapshot embeddings are cached by content
checksum under the history root.

Examples:
  confhist search "git scm"
  confhist search --kind system "security realm"
  confhist search --all --limit 5 timer

Search modes:
  - Keyword only: When embeddings are disabled or Ollama is not running
  - Hybrid: Weighted keyword + semantic score (search.keyword_weight, search.semantic_weight)`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchKind, "kind", "", "Filter by entity kind (job, system)")
	searchCmd.Flags().BoolVar(&searchAll, "all", false, "Search every revision, not only the latest")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results (0 for no limit)")
	searchCmd.Flags().BoolVar(&searchNoEmbed, "no-embed", false, "Keyword search only")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	searchCmd.Flags().BoolVar(&searchToon, "toon", false, "Output in LLM-friendly toon format")
}

type searchResult struct {
	Entity        string  `json:"entity"`
	Identifier    string  `json:"identifier"`
	Operation     string  `json:"operation"`
	User          string  `json:"user"`
	Score         float64 `json:"score"`
	KeywordScore  int     `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
	UsedSemantic  bool    `json:"used_semantic"`
	Match         string  `json:"match,omitempty"`
}

// semanticSearch embeds snapshots on demand and caches them by checksum
type semanticSearch struct {
	client *ollama.Client
	cache  *embeddings.Cache
	query  []float64
}

func newSemanticSearch(ctx context.Context, query string) *semanticSearch {
	if searchNoEmbed || !config.GetEmbeddingsEnabled() {
		return nil
	}
	log := getLogger()

	client, err := ollama.NewClient(config.GetOllamaURL(), config.GetEmbeddingModel())
	if err != nil {
		log.Warn("Embeddings disabled", zap.Error(err))
		return nil
	}
	if !client.IsAvailable(ctx) {
		log.Debug("Ollama not reachable", zap.String("url", config.GetOllamaURL()))
		return nil
	}
	cache, err := embeddings.NewCache(config.GetRoot())
	if err != nil {
		log.Warn("Embedding cache unavailable", zap.Error(err))
		return nil
	}
	vec, err := client.GenerateEmbedding(ctx, query)
	if err != nil {
		log.Warn("Failed to embed query", zap.Error(err))
		return nil
	}
	return &semanticSearch{client: client, cache: cache, query: vec}
}

func (s *semanticSearch) score(ctx context.Context, rev models.Revision, content string) (float64, bool) {
	vec, ok, err := s.cache.Get(rev.Checksum)
	if err != nil || !ok {
		vec, err = s.client.GenerateEmbedding(ctx, content)
		if err != nil {
			getLogger().Debug("Failed to embed snapshot", zap.String("revision", rev.String()), zap.Error(err))
			return 0, false
		}
		if err := s.cache.Put(rev.Checksum, vec); err != nil {
			getLogger().Debug("Failed to cache embedding", zap.Error(err))
		}
	}
	similarity, err := embeddings.CosineSimilarity(s.query, vec)
	if err != nil {
		return 0, false
	}
	return embeddings.SemanticScore(similarity), true
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	query := args[0]
	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 {
		return fmt.Errorf("empty search query")
	}

	var kind models.EntityKind
	switch searchKind {
	case "":
	case string(models.KindJob), string(models.KindSystemConfig):
		kind = models.EntityKind(searchKind)
	default:
		return fmt.Errorf("invalid kind %q (must be: job, system)", searchKind)
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	var entities []models.Entity
	if kind == "" {
		entities, err = store.AllEntities(ctx)
	} else {
		entities, err = store.Entities(ctx, kind)
	}
	if err != nil {
		return err
	}

	semantic := newSemanticSearch(ctx, query)
	human := !searchJSON && !searchToon
	if human {
		if semantic != nil {
			fmt.Fprintln(out, "Using hybrid search (keyword + semantic)")
		} else {
			fmt.Fprintln(out, "Using keyword search only")
		}
	}

	keywordWeight := config.GetKeywordWeight()
	semanticWeight := config.GetSemanticWeight()

	var results []searchResult
	for _, entity := range entities {
		revs, err := candidateRevisions(ctx, store, entity)
		if err != nil {
			return err
		}
		for _, rev := range revs {
			content, err := readSnapshot(store, rev)
			if err != nil {
				getLogger().Warn("Skipping unreadable snapshot", zap.String("revision", rev.String()), zap.Error(err))
				continue
			}

			keywordScore := calculateRelevance(queryWords, rev, content)
			r := searchResult{
				Entity:       rev.Entity.String(),
				Identifier:   rev.Identifier,
				Operation:    string(rev.Operation),
				User:         rev.User.ID,
				KeywordScore: keywordScore,
				Score:        float64(keywordScore),
				Match:        firstMatch(queryWords, content),
			}
			if semantic != nil {
				if s, ok := semantic.score(ctx, rev, content); ok {
					r.SemanticScore = s
					r.UsedSemantic = true
					r.Score = embeddings.HybridScore(keywordScore, s, keywordWeight, semanticWeight)
				}
			}

			// Semantic scores are never zero, so pure semantic hits need a
			// keyword match to count
			if keywordScore > 0 || (r.UsedSemantic && r.SemanticScore >= 50) {
				results = append(results, r)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity < results[j].Entity
	})
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	if results == nil {
		results = []searchResult{}
	}
	if handled, err := emit(results, searchJSON, searchToon); handled {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No snapshots match the search query")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d matching revision(s):\n\n", len(results))
	for i, r := range results {
		scoreDisplay := fmt.Sprintf("%.1f", r.Score)
		if r.UsedSemantic {
			scoreDisplay += fmt.Sprintf(" (keyword: %d, semantic: %.1f%%)", r.KeywordScore, r.SemanticScore)
		} else {
			scoreDisplay += " (keyword only)"
		}

		fmt.Fprintf(out, "%d. %s@%s [score: %s]\n", i+1, r.Entity, r.Identifier, scoreDisplay)
		fmt.Fprintf(out, "   Operation: %s by %s\n", r.Operation, r.User)
		if r.Match != "" {
			fmt.Fprintf(out, "   Match:     %s\n", r.Match)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func candidateRevisions(ctx context.Context, store *history.Store, entity models.Entity) ([]models.Revision, error) {
	if searchAll {
		return store.ListRevisions(ctx, entity)
	}
	latest, ok, err := store.Latest(ctx, entity)
	if err != nil || !ok {
		return nil, err
	}
	if latest.Operation == models.OpDeleted {
		return nil, nil
	}
	return []models.Revision{latest}, nil
}

func readSnapshot(store *history.Store, rev models.Revision) (string, error) {
	rc, err := store.Open(rev)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func calculateRelevance(queryWords []string, rev models.Revision, content string) int {
	score := 0
	searchableText := strings.ToLower(content)
	name := strings.ToLower(displayName(rev))
	user := strings.ToLower(rev.User.Name + " " + rev.User.ID)

	for _, word := range queryWords {
		// Count occurrences of each query word
		count := strings.Count(searchableText, word)
		score += count * 10

		// Bonus points for matches in the entity name
		if strings.Contains(name, word) {
			score += 50
		}

		if strings.Contains(user, word) {
			score += 30
		}
	}

	return score
}

// firstMatch returns the first content line containing a query word
func firstMatch(queryWords []string, content string) string {
	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		for _, word := range queryWords {
			if strings.Contains(lower, word) {
				line = strings.TrimSpace(line)
				if len(line) > 80 {
					line = line[:80] + "..."
				}
				return line
			}
		}
	}
	return ""
}
