package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"sitemigrate/internal/config"
)

const redactedSecret = "********"

func newConfigCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or inspect the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigShowCommand(cc))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dest      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the annotated sample config",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := initTarget(dest)
			if err != nil {
				return err
			}
			if err := refuseExisting(path, overwrite); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("config init: %w", err)
			}
			if err := config.CreateSample(path); err != nil {
				return fmt.Errorf("config init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sample config written to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "fill in [source], [target] and [object_store] before running a scan")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "path", "p", "", "where to write the file (default ~/.config/sitemigrate/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")
	return cmd
}

func initTarget(dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(dest)
}

func refuseExisting(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s exists; pass --overwrite to replace it", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("config init: %w", err)
	}
}

func newConfigShowCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config as TOML with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			data, err := toml.Marshal(maskSecrets(*cfg))
			if err != nil {
				return fmt.Errorf("config show: %w", err)
			}
			source := "built-in defaults"
			if cc.configPath != "" {
				source = cc.configPath
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# effective configuration from %s\n", source)
			_, err = out.Write(data)
			return err
		},
	}
}

func maskSecrets(cfg config.Config) config.Config {
	for _, secret := range []*string{
		&cfg.Store.DSN,
		&cfg.Source.Token,
		&cfg.Target.Password,
		&cfg.Tracker.Token,
		&cfg.ObjectStore.AccessKey,
		&cfg.ObjectStore.SecretKey,
		&cfg.Notifications.SMTPPassword,
	} {
		if *secret != "" {
			*secret = redactedSecret
		}
	}
	return cfg
}
