package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	cc := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:   "sitemigrate",
		Short: "Drive sites through export, upload and import",
		Long: `sitemigrate runs the scan loops that admit migration records into each
stage, the workers that carry out a workflow for one record, and the
operator commands used to inspect and steer records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cc.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to config.toml (default ~/.config/sitemigrate/config.toml)")

	for _, sub := range []*cobra.Command{
		newScanCommand(cc),
		newRunCommand(cc),
		newRecordsCommand(cc),
		newStopCommand(cc),
		newCheckCommand(cc),
		newNotifyCommand(cc),
		newConfigCommand(cc),
	} {
		root.AddCommand(sub)
	}
	return root
}
