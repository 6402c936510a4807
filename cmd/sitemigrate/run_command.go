package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitemigrate/internal/actions"
	"sitemigrate/internal/config"
	"sitemigrate/internal/escalation"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/notifications"
	"sitemigrate/internal/services/objectstore"
	"sitemigrate/internal/services/source"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workflowName string
	var debug bool
	var testRun bool

	cmd := &cobra.Command{
		Use:   "run --workflow <name> <link_id> <site_id>",
		Short: "Run one workflow for one record (used by the scan loops)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			linkID, siteID := args[0], args[1]
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("worker", debug)
			if err != nil {
				return err
			}
			logger = logging.NewComponentLogger(logger, "worker")

			runCtx, stop := signal.NotifyContext(commandCtx(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			defs, err := workflow.LoadDefinitions(cfg.Workflow.DefinitionsFile)
			if err != nil {
				return err
			}
			def, err := defs.Get(workflowName)
			if err != nil {
				return err
			}

			store, err := migration.Open(cfg)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer store.Close()
			store.SetIdentity(cfg.Scheduler.Identity + "/" + workflowName)

			sender := notifications.NewSender(cfg, logger)
			registry, err := buildRegistry(runCtx, cfg, store, sender, logger)
			if err != nil {
				return err
			}
			if err := defs.Validate(registry); err != nil {
				return err
			}

			executor := workflow.NewExecutor(workflow.Options{
				Config:    cfg,
				Store:     store,
				Registry:  registry,
				Escalator: escalation.NewFromConfig(cfg, store, logger),
				Sender:    sender,
				Logger:    logger,
				Flags:     workflow.Flags{TestRun: testRun, Debug: debug, Variant: cfg.Workflow.Variant},
			})
			if err := executor.Execute(runCtx, def, linkID, siteID); err != nil {
				if errors.Is(err, workflow.ErrStepFailed) {
					return fmt.Errorf("%s %s/%s: %w", workflowName, linkID, siteID, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished for %s/%s\n", workflowName, linkID, siteID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflowName, "workflow", "w", "", "Workflow definition to run")
	cmd.Flags().BoolVar(&debug, "debug", false, "Debug logging and interactive retry delays")
	cmd.Flags().BoolVar(&testRun, "test-run", false, "Enable test-run conditioned steps")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func buildRegistry(ctx context.Context, cfg *config.Config, store *migration.Store, sender notifications.Sender, logger *slog.Logger) (*workflow.Registry, error) {
	var uploader actions.Uploader
	objects, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Debug("object store unavailable", logging.Error(err))
		uploader = actions.UnavailableUploader{Err: err}
	} else {
		uploader = objects
	}

	registry := workflow.NewRegistry()
	if err := actions.Register(registry, actions.Deps{
		Config:  cfg,
		Store:   store,
		Source:  source.New(cfg.Source),
		Target:  target.New(cfg.Target),
		Objects: uploader,
	}); err != nil {
		return nil, err
	}
	if err := workflow.RegisterBuiltins(registry, sender); err != nil {
		return nil, err
	}
	return registry, nil
}
