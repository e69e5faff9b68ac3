package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
)

func init() {
	cmd := &cobra.Command{
		Use:   "answer [query]",
		Short: "Answer one query, using the fallback on a miss",
		Example: `  faqroute answer "kitna data bacha hai" --ctx balance_mb=512
  faqroute answer "plan kab khatam hoga" --ctx plan_name=Max --ctx "expiry_date=5 May"`,
		Args: cobra.MinimumNArgs(1),
		Run:  runAnswer,
	}

	cmd.Flags().StringToStringP("ctx", "c", nil, "Context facts as key=value, repeatable")

	RootCmd.AddCommand(cmd)
}

func runAnswer(cmd *cobra.Command, args []string) {
	raw, _ := cmd.Flags().GetStringToString("ctx")
	query := strings.Join(args, " ")

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
	router, err := a.router()
	if err != nil {
		exitErr("setup", err)
	}

	facts := make(entities.Context, len(raw))
	for k, v := range raw {
		facts[k] = v
	}

	out, err := router.Answer(cmd.Context(), query, facts, cfg.Retrieval.Threshold)

	w := cmd.OutOrStdout()
	if formatFlag == "json" {
		view := map[string]interface{}{"query": query, "outcome": out}
		if err != nil {
			view["error"] = err.Error()
		}
		printJSON(w, view)
	} else {
		label := color.New(color.FgGreen).Sprint("template")
		if out.Source == entities.SourceFallback {
			label = color.New(color.FgCyan).Sprint("fallback")
		}
		fmt.Fprintf(w, "%s %s score=%.3f", out.Decision, label, out.Score)
		if out.Reason != entities.ReasonNone {
			fmt.Fprintf(w, " reason=%s", out.Reason)
		}
		fmt.Fprintln(w)
		if out.Answer != "" {
			fmt.Fprintln(w, out.Answer)
		}
	}
	if err != nil {
		exitErr("answer", err)
	}
}
