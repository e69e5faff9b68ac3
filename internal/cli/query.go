package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [query...]",
		Short: "Match queries against the FAQ without calling the fallback",
		Long: "Each argument is one query. Prints the best match, its score and whether it clears the threshold, " +
			"then the hit rate over all queries.",
		Example: `  faqroute query "kitna data bacha hai" "plan kab khatam hoga" "what's the weather"`,
		Args:    cobra.MinimumNArgs(1),
		Run:     runQuery,
	}

	cmd.Flags().IntP("k", "k", 1, "Show the top k matches per query")

	RootCmd.AddCommand(cmd)
}

type queryResult struct {
	Query   string                  `json:"query"`
	Outcome entities.QueryOutcome   `json:"outcome"`
	Matches []entities.SearchResult `json:"matches,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")

	cfg, err := loadConfig(cmd)
	if err != nil {
		exitErr("config", err)
	}
	a, err := newApp(cfg, newLogger(cfg, false))
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	if _, err := a.open(cmd.Context()); err != nil {
		exitErr("open snapshot", err)
	}

	results := a.runQueries(cmd.Context(), args, k)
	out := cmd.OutOrStdout()
	if formatFlag == "json" {
		printJSON(out, map[string]interface{}{
			"threshold": cfg.Retrieval.Threshold,
			"results":   results,
			"metrics":   a.counters.Snapshot(),
		})
		return
	}
	for _, r := range results {
		printQueryResult(out, r)
	}
	s := a.counters.Snapshot()
	fmt.Fprintf(out, "\n%d/%d hits (%.0f%%) at threshold %.2f\n", s.Hits, s.Total, s.HitRate*100, cfg.Retrieval.Threshold)
}

// runQueries retrieves every query and counts the outcomes. Queries whose
// encoding fails are reported as misses.
func (a *app) runQueries(ctx context.Context, queries []string, k int) []queryResult {
	threshold := a.cfg.Retrieval.Threshold
	results := make([]queryResult, 0, len(queries))
	for _, q := range queries {
		r := queryResult{Query: q}
		out, err := a.retriever.Retrieve(ctx, q, threshold)
		if err != nil {
			r.Error = err.Error()
		}
		r.Outcome = out
		a.counters.Record(out, false)

		if k > 1 && err == nil {
			r.Matches, _ = a.retriever.Search(ctx, q, k, 0)
		}
		results = append(results, r)
	}
	return results
}

func printQueryResult(w io.Writer, r queryResult) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Query: %s\n", r.Query)

	o := r.Outcome
	if o.Hit() {
		color.New(color.FgGreen).Fprintf(w, "  HIT  %.3f  ", o.Score)
		fmt.Fprintf(w, "[%s] %s\n", o.Category, o.Question)
	} else {
		color.New(color.FgYellow).Fprintf(w, "  MISS %.3f  ", o.Score)
		fmt.Fprintf(w, "(%s)", o.Reason)
		if o.Question != "" {
			fmt.Fprintf(w, " nearest: %s", o.Question)
		}
		fmt.Fprintln(w)
	}
	if r.Error != "" {
		color.New(color.FgRed).Fprintf(w, "  error: %s\n", r.Error)
	}
	for i, m := range r.Matches {
		fmt.Fprintf(w, "  %d. %.3f [%s] %s\n", i+1, m.Score, m.Category, m.Question)
	}
}
