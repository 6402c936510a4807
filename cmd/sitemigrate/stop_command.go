package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <export|upload|import|all>",
		Short: "Ask scan loops to exit after their current pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.TrimSpace(args[0]))
			targets := []string{name}
			if name == "all" {
				targets = scanners
			} else if !isScanner(name) {
				return fmt.Errorf("unknown scanner %q (use %s or all)", name, strings.Join(scanners, ", "))
			}
			if err := os.MkdirAll(cfg.Paths.FlagDir, 0o755); err != nil {
				return fmt.Errorf("ensure flag directory: %w", err)
			}
			for _, scanner := range targets {
				path := cfg.ExitFlagPath(scanner)
				if err := os.WriteFile(path, nil, 0o644); err != nil {
					return fmt.Errorf("write exit flag for %s: %w", scanner, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requested %s scanner exit (%s)\n", scanner, path)
			}
			return nil
		},
	}
}
