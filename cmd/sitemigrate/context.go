package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
)

// commandContext carries state shared by every subcommand of one
// invocation. The config is loaded at most once.
type commandContext struct {
	configFlag *string

	loadOnce   sync.Once
	config     *config.Config
	configPath string // empty when running on defaults
	loadErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.loadOnce.Do(c.load)
	return c.config, c.loadErr
}

func (c *commandContext) load() {
	requested := ""
	if c.configFlag != nil {
		requested = strings.TrimSpace(*c.configFlag)
	}
	cfg, resolved, found, err := config.Load(requested)
	if err == nil {
		err = cfg.EnsureDirectories()
	}
	if err != nil {
		c.loadErr = err
		return
	}
	c.config = cfg
	if found {
		c.configPath = resolved
	}
}

// withStore opens the record store for the duration of fn. identity names
// the actor stamped into modified_by.
func (c *commandContext) withStore(identity string, fn func(*config.Config, *migration.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := migration.Open(cfg)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()
	if identity != "" {
		store.SetIdentity(identity)
	}
	return fn(cfg, store)
}

func (c *commandContext) logger(name string, debug bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, name, debug)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return logger, nil
}

// commandCtx returns the command's context, which is nil when the command
// was started with Execute rather than ExecuteContext.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// shouldSkipConfig reports whether cmd or a parent opted out of config loading.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
