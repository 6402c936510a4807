package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sitemigrate/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	cmd.AddCommand(newNotifyTestCommand(ctx))
	return cmd
}

func newNotifyTestCommand(ctx *commandContext) *cobra.Command {
	var to []string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("sitemigrate", false)
			if err != nil {
				return err
			}
			if cfg.Notifications.Backend == "none" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are disabled (notifications.backend = \"none\")")
				return nil
			}
			recipients := notifications.Recipients(notifications.Message{Recipients: to}, cfg.Notifications.DefaultRecipients)
			msg := notifications.Message{
				Template:   "test",
				Recipients: recipients,
				Values:     map[string]any{"identity": cfg.Scheduler.Identity},
			}
			if err := notifications.NewSender(cfg, logger).Send(commandCtx(cmd), msg); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent test notification via %s to %s\n", cfg.Notifications.Backend, strings.Join(recipients, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipients (defaults to notifications.default_recipients)")
	return cmd
}
