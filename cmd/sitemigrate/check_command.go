package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/preflight"
	"sitemigrate/internal/services/objectstore"
	"sitemigrate/internal/services/source"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/services/tracker"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, external commands and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(cfg *config.Config, store *migration.Store) error {
				runCtx := commandCtx(cmd)
				remotes := preflight.Remotes{
					Store:   store,
					Source:  source.New(cfg.Source),
					Target:  target.New(cfg.Target),
					Tracker: tracker.New(cfg.Tracker),
				}
				objects, err := objectstore.New(runCtx, cfg.ObjectStore)
				if err == nil {
					remotes.Objects = preflight.PingFunc(objects.Head)
				} else if cfg.ObjectStore.Bucket != "" {
					remotes.Objects = preflight.PingFunc(func(context.Context) error { return err })
				}

				results := preflight.RunAll(runCtx, cfg, remotes)
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, colorResult(r.Passed, r.Optional, colorize), r.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows))
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d required check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}
