// Package cli implements the faqroute commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/faqroute/internal/config"
)

var (
	faqFile      string
	snapshotPath string
	encoderFlag  string
	threshold    float64
	formatFlag   string
	verbose      bool
	backendFlag  string
	fallbackFlag string
	concurrency  int
	queryTimeout time.Duration
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "faqroute",
	Short: "Semantic FAQ retrieval with generative fallback",
	Long: "Answers support queries from pre-authored templates when a known question matches " +
		"closely enough, and hands everything else to a generative model.",
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&faqFile, "faq", "", "FAQ file, .json or .yaml (default: $FAQ_FILE or faqs.json)")
	pf.StringVar(&snapshotPath, "snapshot", "", "Snapshot path (default: $SNAPSHOT_PATH)")
	pf.StringVar(&backendFlag, "backend", "", "Snapshot backend: file or sqlite")
	pf.StringVarP(&encoderFlag, "encoder", "e", "", "Encoder provider: hashing, ollama or hugot")
	pf.StringVar(&fallbackFlag, "fallback", "", "Fallback provider: ollama or gemini")
	pf.Float64VarP(&threshold, "threshold", "t", 0, "Match threshold in [0,1] (default: $MATCH_THRESHOLD or 0.65)")
	pf.IntVar(&concurrency, "concurrency", 0, "Parallel encoder batches during a build")
	pf.DurationVar(&queryTimeout, "timeout", 0, "Per-query timeout, e.g. 5s")
	pf.StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// loadConfig reads .env and the environment, then applies any flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	return config.Load(func(c *config.Config) {
		if flags.Changed("faq") {
			c.Storage.FAQFile = faqFile
		}
		if flags.Changed("snapshot") {
			c.Storage.SnapshotPath = snapshotPath
		}
		if flags.Changed("backend") {
			c.Storage.Backend = backendFlag
		}
		if flags.Changed("encoder") && c.Encoder.Provider != encoderFlag {
			c.Encoder.Provider = encoderFlag
			c.Encoder.Model = config.DefaultEncoderModel(encoderFlag)
		}
		if flags.Changed("fallback") && c.Fallback.Provider != fallbackFlag {
			c.Fallback.Provider = fallbackFlag
			c.Fallback.Model = config.DefaultFallbackModel(fallbackFlag)
		}
		if flags.Changed("threshold") {
			c.Retrieval.Threshold = threshold
		}
		if flags.Changed("concurrency") {
			c.Retrieval.EncodeConcurrency = concurrency
		}
		if flags.Changed("timeout") {
			c.Retrieval.QueryTimeout = queryTimeout
		}
	})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
