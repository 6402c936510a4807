package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
)

const operatorIdentity = "cli"

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"record"},
		Short:   "Inspect and steer migration records",
	}
	cmd.AddCommand(newRecordsListCommand(ctx))
	cmd.AddCommand(newRecordsShowCommand(ctx))
	cmd.AddCommand(newRecordsAddCommand(ctx))
	cmd.AddCommand(newRecordsStartCommand(ctx))
	cmd.AddCommand(newRecordsRetryCommand(ctx))
	cmd.AddCommand(newRecordsRestCommand(ctx, "pause", migration.StatePaused, "Park a record so no scan loop picks it up"))
	cmd.AddCommand(newRecordsRestCommand(ctx, "admin", migration.StateAdmin, "Hand a record over for manual intervention"))
	cmd.AddCommand(newRecordsResumeCommand(ctx))
	return cmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var states []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, most recently modified first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]migration.State, 0, len(states))
			for _, raw := range states {
				for _, part := range strings.Split(raw, ",") {
					if strings.TrimSpace(part) == "" {
						continue
					}
					state, ok := migration.ParseState(part)
					if !ok {
						return fmt.Errorf("unknown state %q", part)
					}
					filter = append(filter, state)
				}
			}
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				records, err := store.ListAll(commandCtx(cmd), filter...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No records")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.LinkID,
						rec.SiteID,
						colorState(rec.State, colorize),
						yesNo(rec.Active),
						formatSize(rec.ZipSize),
						formatTime(rec.ModifiedAt),
						rec.FailureType,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Link", "Site", "State", "Active", "Zip", "Modified", "Failure"},
					rows,
					4,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show records in these states")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <link_id> <site_id>",
		Short: "Show one record with its workflow log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				rec, err := store.Get(commandCtx(cmd), args[0], args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := [][]string{
					{"Record", rec.Key()},
					{"Title", rec.Title},
					{"State", colorState(rec.State, colorize)},
					{"Active", yesNo(rec.Active)},
					{"Started by", rec.StartedBy},
					{"Started", formatTime(rec.StartedAt)},
					{"Uploaded", formatTime(rec.UploadedAt)},
					{"Modified", fmt.Sprintf("%s by %s", formatTime(rec.ModifiedAt), rec.ModifiedBy)},
					{"Zip size", formatSize(rec.ZipSize)},
					{"Transfer site", rec.TransferSiteID},
					{"Imported site", rec.ImportedSiteID},
					{"Target site", rec.TargetSiteID},
					{"Notify", strings.Join(rec.Notification, ", ")},
				}
				if rec.FailureType != "" {
					rows = append(rows, []string{"Failure", rec.FailureType + ": " + rec.FailureDetail})
				}
				for _, key := range sortedKeys(rec.Files) {
					rows = append(rows, []string{"File " + key, rec.Files[key]})
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows))
				if len(rec.Workflow) > 0 {
					fmt.Fprintln(out)
					fmt.Fprint(out, rec.Workflow.String())
				}
				return nil
			})
		},
	}
}

func newRecordsAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var notify []string
	var startedBy string
	var targetSite string
	var start bool

	cmd := &cobra.Command{
		Use:   "add <link_id> <site_id>",
		Short: "Register a site for migration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				rec, err := store.Create(commandCtx(cmd), migration.Record{
					LinkID:       args[0],
					SiteID:       args[1],
					Title:        strings.TrimSpace(title),
					Notification: notify,
					StartedBy:    strings.TrimSpace(startedBy),
					TargetSiteID: strings.TrimSpace(targetSite),
				})
				if err != nil {
					return err
				}
				if start {
					if err := store.Start(commandCtx(cmd), rec.LinkID, rec.SiteID, ""); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", rec.Key())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Human-readable site title")
	cmd.Flags().StringSliceVar(&notify, "notify", nil, "Notification recipients")
	cmd.Flags().StringVar(&startedBy, "started-by", "", "Requesting user's address")
	cmd.Flags().StringVar(&targetSite, "target-site", "", "Existing site on the target platform to import into")
	cmd.Flags().BoolVar(&start, "start", false, "Start the record immediately")
	return cmd
}

func newRecordsStartCommand(ctx *commandContext) *cobra.Command {
	var startedBy string
	cmd := &cobra.Command{
		Use:   "start <link_id> <site_id>",
		Short: "Make an init record visible to the export scan loop",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				if err := store.Start(commandCtx(cmd), args[0], args[1], strings.TrimSpace(startedBy)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&startedBy, "started-by", "", "Requesting user's address")
	return cmd
}

func newRecordsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <link_id> <site_id>",
		Short: "Return a failed record to starting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				if err := store.Retry(commandCtx(cmd), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newRecordsRestCommand(ctx *commandContext, use string, state migration.State, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <link_id> <site_id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				if err := store.SetRestState(commandCtx(cmd), args[0], args[1], state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s is now %s\n", args[0], args[1], state)
				return nil
			})
		},
	}
}

func newRecordsResumeCommand(ctx *commandContext) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "resume <link_id> <site_id>",
		Short: "Move a paused or admin record back into the pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok := migration.ParseState(to)
			if !ok {
				return fmt.Errorf("unknown state %q", to)
			}
			return ctx.withStore(operatorIdentity, func(_ *config.Config, store *migration.Store) error {
				if err := store.Resume(commandCtx(cmd), args[0], args[1], state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s resumed as %s\n", args[0], args[1], state)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", string(migration.StateStarting), "State to resume into")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}
