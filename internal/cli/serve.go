package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/faqroute/internal/adapters/filewatcher"
	"github.com/0xcro3dile/faqroute/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/faqroute/internal/infrastructure/http"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: $APP_ADDR or :8080)")
	cmd.Flags().Bool("watch", true, "Rebuild when the FAQ file changes")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		exitErr("config", err)
	}
	if cmd.Flags().Changed("addr") {
		cfg.App.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("watch") {
		cfg.App.WatchFAQ, _ = cmd.Flags().GetBool("watch")
	}

	log := newLogger(cfg, true)
	a, err := newApp(cfg, log)
	if err != nil {
		exitErr("setup", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.open(ctx); err != nil {
		exitErr("open snapshot", err)
	}
	router, err := a.router()
	if err != nil {
		exitErr("setup", err)
	}

	watcher, err := filewatcher.NewFSNotifyWatcher([]string{filepath.Base(cfg.Storage.FAQFile)}, log)
	if err != nil {
		exitErr("watcher", err)
	}
	defer watcher.Stop()
	reloader := usecases.NewReloader(a.kb, a.source, watcher, a.repo, cfg.Storage.FAQFile, log)

	server := httpserver.NewServer(httpserver.Deps{
		Router:     router,
		Retriever:  a.retriever,
		KB:         a.kb,
		Reloader:   reloader,
		Counters:   a.counters,
		Prometheus: a.prom,
		Log:        log,
	}, cfg.App.Addr, cfg.Retrieval.TopK)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	if cfg.App.WatchFAQ {
		g.Go(func() error { return reloader.Run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		exitErr("serve", err)
	}
	log.Info("main", "shutdown complete", nil)
}
