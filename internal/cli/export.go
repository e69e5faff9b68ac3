package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the serving snapshot blob to a file or stdout",
		Long:  "Writes the snapshot in its portable blob form. A blob written here can be restored on any host using the same encoder.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
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
	blob, err := a.kb.Persist()
	if err != nil {
		exitErr("persist", err)
	}

	if len(args) == 0 {
		cmd.OutOrStdout().Write(blob)
		return
	}
	if err := os.WriteFile(args[0], blob, 0644); err != nil {
		exitErr("write", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(blob), args[0])
}
