package tasks

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/assetpipe/internal/server"
	"github.com/conneroisu/assetpipe/internal/watcher"
)

func (g *Graph) watch(ctx context.Context) error {
	cfg := g.config

	hub := server.NewHub(server.AllowedOrigins(cfg), g.logger)
	srv := server.New(cfg, hub, g.logger)

	w, err := watcher.New(watcher.Config{
		Root:     cfg.Root,
		Debounce: cfg.Watch.Debounce,
		Bindings: g.Bindings(),
		Notifier: hub,
		Ignore:   []string{cfg.Output.Dir},
		Logger:   g.logger,
	})
	if err != nil {
		_ = hub.Shutdown(ctx)
		return err
	}

	// A server that cannot listen stops the watcher too
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(ctx) })
	eg.Go(func() error { return w.Run(ctx) })

	return eg.Wait()
}
