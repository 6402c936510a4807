package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateActions(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkRetentionDays < 0 {
		return errors.New("paths.work_retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path must be set for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn must be set for the postgres driver (or SITEMIGRATE_STORE_DSN)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (use sqlite or postgres)", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.poll_interval":    c.Scheduler.PollInterval,
		"scheduler.backoff_interval": c.Scheduler.BackoffInterval,
		"scheduler.shutdown_grace":   c.Scheduler.ShutdownGrace,
	})
}

func (c *Config) validateStages() error {
	if err := ensurePositiveMap(map[string]int{
		"export.max_jobs":             c.Export.MaxJobs,
		"upload.max_jobs":             c.Upload.MaxJobs,
		"import.relogin_idle_minutes": c.Import.ReloginIdleMinutes,
	}); err != nil {
		return err
	}
	if c.Export.MaxArchiveBytes < 0 {
		return errors.New("export.max_archive_bytes must not be negative")
	}
	if c.Import.ExpiryMinutes < 0 {
		return errors.New("import.expiry_minutes must not be negative")
	}
	if len(c.Import.SuccessStatuses) == 0 {
		return errors.New("import.success_statuses must include at least one status")
	}
	for _, status := range c.Import.SuccessStatuses {
		for _, failure := range c.Import.FailureStatuses {
			if status == failure {
				return fmt.Errorf("import status %q cannot be both a success and a failure marker", status)
			}
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxTries <= 0 {
		return errors.New("retry.max_tries must be positive")
	}
	if c.Retry.DelaySeconds < 0 {
		return errors.New("retry.delay_seconds must not be negative")
	}
	if c.Retry.InteractiveDelaySeconds < 0 {
		return errors.New("retry.interactive_delay_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateTracker() error {
	if !c.Tracker.Enabled {
		return nil
	}
	if c.Tracker.BaseURL == "" {
		return errors.New("tracker.base_url must be set when tracker.enabled is true")
	}
	if strings.TrimSpace(c.Tracker.Project) == "" {
		return errors.New("tracker.project must be set when tracker.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.Backend {
	case "none":
	case "smtp":
		if strings.TrimSpace(c.Notifications.SMTPHost) == "" {
			return errors.New("notifications.smtp_host must be set when notifications.backend is smtp")
		}
		if strings.TrimSpace(c.Notifications.From) == "" {
			return errors.New("notifications.from must be set when notifications.backend is smtp")
		}
	case "ntfy":
		if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
			return errors.New("notifications.ntfy_topic must be set when notifications.backend is ntfy")
		}
	default:
		return fmt.Errorf("notifications.backend: unsupported value %q", c.Notifications.Backend)
	}
	if c.Notifications.MailRunLog && c.Notifications.AdminEmail == "" {
		return errors.New("notifications.admin_email must be set when notifications.mail_run_log is true")
	}
	return nil
}

func (c *Config) validateActions() error {
	names := make([]string, 0, len(c.Actions.Commands))
	for name := range c.Actions.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := c.Actions.Commands[name]
		if len(cmd.Args) == 0 || strings.TrimSpace(cmd.Args[0]) == "" {
			return fmt.Errorf("actions.commands.%s.args must name an executable", name)
		}
		if cmd.TimeoutSeconds < 0 {
			return fmt.Errorf("actions.commands.%s.timeout_seconds must not be negative", name)
		}
		if cmd.Produces != "" && strings.TrimSpace(cmd.OutputPath) == "" {
			return fmt.Errorf("actions.commands.%s.output_path must be set when produces is set", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
