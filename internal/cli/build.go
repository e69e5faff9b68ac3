package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/faqroute/internal/domain/usecases"
)

func init() {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Re-index the FAQ file and save the snapshot",
		Long:  "Reads every entry from the FAQ file, encodes it, and replaces the stored snapshot. Run after editing the FAQ file.",
		Args:  cobra.NoArgs,
		Run:   runBuild,
	}

	RootCmd.AddCommand(cmd)
}

func runBuild(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		exitErr("config", err)
	}
	a, err := newApp(cfg, newLogger(cfg, false))
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	start := time.Now()
	store, err := a.build(cmd.Context())
	if err != nil {
		exitErr("build", err)
	}
	printStats(cmd.OutOrStdout(), store, cfg.Storage.SnapshotPath, time.Since(start))
}

func printStats(w io.Writer, store *usecases.Store, path string, took time.Duration) {
	if formatFlag == "json" {
		printJSON(w, storeStats(store, path))
		return
	}
	color.New(color.FgGreen).Fprintf(w, "Indexed %d entries", store.Len())
	if took > 0 {
		fmt.Fprintf(w, " in %s", took.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  encoder:   %s\n", store.EncoderID())
	fmt.Fprintf(w, "  dimension: %d\n", store.Dimension())
	fmt.Fprintf(w, "  snapshot:  %s\n", path)
}
