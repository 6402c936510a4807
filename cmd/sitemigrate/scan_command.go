package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"sitemigrate/internal/config"
	"sitemigrate/internal/escalation"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/preflight"
	"sitemigrate/internal/scheduler"
	"sitemigrate/internal/services/source"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/supervisor"
	"sitemigrate/internal/workspace"
)

var scanners = []string{"export", "upload", "import"}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var debug bool
	var testRun bool
	var metricsAddr string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:       "scan <export|upload|import>",
		Short:     "Run a scan loop that admits records into a stage",
		Args:      cobra.ExactArgs(1),
		ValidArgs: scanners,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			if !isScanner(name) {
				return fmt.Errorf("unknown scanner %q (use %s)", name, strings.Join(scanners, ", "))
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("scan-"+name, debug)
			if err != nil {
				return err
			}
			logger = logging.NewComponentLogger(logger, "scan-"+name)

			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{Dir: cfg.RunLogDir(), Pattern: "*.log"},
				logging.RetentionTarget{Dir: cfg.WorkerLogDir(), Pattern: "*.log"},
			)

			runCtx, stop := signal.NotifyContext(commandCtx(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := migration.Open(cfg)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer store.Close()
			store.SetIdentity(cfg.Scheduler.Identity + "/" + name)

			if name == "export" && cfg.Paths.WorkRetentionDays > 0 {
				if inUse, err := workspace.InUse(runCtx, cfg, store); err != nil {
					logger.Warn("work directory prune skipped", logging.Error(err))
				} else {
					workspace.Prune(runCtx, cfg.Paths.WorkDir, time.Duration(cfg.Paths.WorkRetentionDays)*24*time.Hour, inUse, logger)
				}
			}

			if !skipPreflight {
				results := preflight.RunAll(runCtx, cfg, preflight.Remotes{Store: store})
				if failed := preflight.Failed(results); len(failed) > 0 {
					for _, r := range failed {
						logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
							logging.String("check", r.Name),
							logging.String("detail", r.Detail),
						)
					}
					return fmt.Errorf("preflight failed: %s", failed[0].Name)
				}
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := scheduler.NewMetrics(registry)
			if addr := firstNonEmpty(metricsAddr, cfg.Metrics.Listen); addr != "" {
				go func() {
					if err := scheduler.ServeMetrics(runCtx, addr, registry, logger); err != nil {
						logger.Warn("metrics listener stopped", logging.Error(err))
					}
				}()
			}

			sup := supervisor.New(logger)
			deps := scheduler.Deps{
				Store: store,
				Spawner: supervisor.ExecSpawner{
					ConfigPath: ctx.configPath,
					Debug:      debug,
					TestRun:    testRun,
					LogDir:     cfg.WorkerLogDir(),
				},
				Supervisor:              sup,
				Escalator:               escalation.NewFromConfig(cfg, store, logger),
				Metrics:                 metrics,
				Logger:                  logger,
				EscalateCandidateErrors: cfg.Scheduler.EscalateCandidateErrors,
			}

			return scheduler.Run(runCtx, buildPass(cfg, name, store, deps), scheduler.LoopOptions{
				Interval:      seconds(cfg.Scheduler.PollInterval),
				Backoff:       seconds(cfg.Scheduler.BackoffInterval),
				LockPath:      cfg.LockPath(name),
				ExitFlag:      cfg.ExitFlagPath(name),
				ShutdownGrace: seconds(cfg.Scheduler.ShutdownGrace),
				Supervisor:    sup,
				Logger:        logger,
			})
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Debug logging for the loop and its workers")
	cmd.Flags().BoolVar(&testRun, "test-run", false, "Spawn workers in test-run mode")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running readiness checks")
	return cmd
}

func buildPass(cfg *config.Config, name string, store *migration.Store, deps scheduler.Deps) scheduler.Pass {
	switch name {
	case "upload":
		return scheduler.NewAdmission(scheduler.UploadStage(cfg), deps)
	case "import":
		return scheduler.NewImportChecker(cfg.Import, store, target.New(cfg.Target), source.New(cfg.Source), deps)
	default:
		return scheduler.NewAdmission(scheduler.ExportStage(cfg), deps)
	}
}

func isScanner(name string) bool {
	for _, s := range scanners {
		if s == name {
			return true
		}
	}
	return false
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

