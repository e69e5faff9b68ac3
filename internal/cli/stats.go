package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/faqroute/internal/domain/usecases"
	"github.com/0xcro3dile/faqroute/internal/metrics"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show snapshot statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsView struct {
	Entries    int            `json:"entries"`
	Dimension  int            `json:"dimension"`
	Encoder    string         `json:"encoder"`
	BuiltAt    time.Time      `json:"built_at"`
	Snapshot   string         `json:"snapshot"`
	Categories map[string]int `json:"categories"`
}

func storeStats(store *usecases.Store, path string) statsView {
	snap := store.Snapshot()
	v := statsView{
		Entries:    store.Len(),
		Dimension:  store.Dimension(),
		Encoder:    store.EncoderID(),
		BuiltAt:    snap.BuiltAt,
		Snapshot:   path,
		Categories: map[string]int{},
	}
	for _, e := range snap.Entries {
		cat := e.Category
		if cat == "" {
			cat = metrics.Uncategorized
		}
		v.Categories[cat]++
	}
	return v
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		exitErr("config", err)
	}
	a, err := newApp(cfg, newLogger(cfg, false))
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	store, err := a.open(cmd.Context())
	if err != nil {
		exitErr("open snapshot", err)
	}
	printStats(cmd.OutOrStdout(), store, cfg.Storage.SnapshotPath, 0)
}

func printJSON(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}
