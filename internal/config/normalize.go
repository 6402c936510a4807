package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeStages()
	c.normalizeRemotes()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = filepath.Join(c.Paths.DataDir, "work")
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FlagDir) == "" {
		c.Paths.FlagDir = filepath.Join(c.Paths.DataDir, "run")
	}
	if c.Paths.FlagDir, err = expandPath(c.Paths.FlagDir); err != nil {
		return fmt.Errorf("paths.flag_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Driver == "postgresql" || c.Store.Driver == "pgx" {
		c.Store.Driver = "postgres"
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("SITEMIGRATE_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if c.Store.Driver == "sqlite" {
		if strings.TrimSpace(c.Store.Path) == "" {
			c.Store.Path = filepath.Join(c.Paths.DataDir, defaultStoreFile)
		}
		var err error
		if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	return nil
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.Identity = strings.TrimSpace(c.Scheduler.Identity)
	if c.Scheduler.Identity == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Scheduler.Identity = "sitemigrate@" + host
		} else {
			c.Scheduler.Identity = "sitemigrate"
		}
	}
}

func (c *Config) normalizeStages() {
	c.Export.Workflow = strings.TrimSpace(c.Export.Workflow)
	if c.Export.Workflow == "" {
		c.Export.Workflow = defaultExportWorkflow
	}
	c.Upload.Workflow = strings.TrimSpace(c.Upload.Workflow)
	if c.Upload.Workflow == "" {
		c.Upload.Workflow = defaultUploadWorkflow
	}
	c.Upload.ArtifactKey = strings.TrimSpace(c.Upload.ArtifactKey)
	if c.Upload.ArtifactKey == "" {
		c.Upload.ArtifactKey = defaultUploadArtifactKey
	}
	c.Import.Workflow = strings.TrimSpace(c.Import.Workflow)
	if c.Import.Workflow == "" {
		c.Import.Workflow = defaultImportWorkflow
	}
	c.Import.CrossRefProperty = strings.TrimSpace(c.Import.CrossRefProperty)
	if c.Import.CrossRefProperty == "" {
		c.Import.CrossRefProperty = defaultImportCrossRefProperty
	}
	if c.Import.ReloginIdleMinutes <= 0 {
		c.Import.ReloginIdleMinutes = defaultImportReloginIdle
	}
	c.Import.SuccessStatuses = normalizeStatuses(c.Import.SuccessStatuses)
	c.Import.FailureStatuses = normalizeStatuses(c.Import.FailureStatuses)
	if c.Retry.MaxTries <= 0 {
		c.Retry.MaxTries = defaultRetryMaxTries
	}
	if c.Workflow.DefinitionsFile != "" {
		if expanded, err := expandPath(c.Workflow.DefinitionsFile); err == nil {
			c.Workflow.DefinitionsFile = expanded
		}
	}
	c.Workflow.Variant = strings.ToLower(strings.TrimSpace(c.Workflow.Variant))
	if c.Actions.Commands == nil {
		c.Actions.Commands = map[string]Command{}
	}
}

func normalizeStatuses(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func (c *Config) normalizeRemotes() {
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	c.Source.Token = strings.TrimSpace(c.Source.Token)
	if c.Source.Token == "" {
		if value, ok := os.LookupEnv("SITEMIGRATE_SOURCE_TOKEN"); ok {
			c.Source.Token = strings.TrimSpace(value)
		}
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultHTTPTimeoutSeconds
	}

	c.Target.BaseURL = strings.TrimRight(strings.TrimSpace(c.Target.BaseURL), "/")
	c.Target.Username = strings.TrimSpace(c.Target.Username)
	if c.Target.Password == "" {
		if value, ok := os.LookupEnv("SITEMIGRATE_TARGET_PASSWORD"); ok {
			c.Target.Password = value
		}
	}
	if c.Target.TimeoutSeconds <= 0 {
		c.Target.TimeoutSeconds = defaultHTTPTimeoutSeconds
	}

	c.Tracker.BaseURL = strings.TrimRight(strings.TrimSpace(c.Tracker.BaseURL), "/")
	c.Tracker.Token = strings.TrimSpace(c.Tracker.Token)
	if c.Tracker.Token == "" {
		if value, ok := os.LookupEnv("SITEMIGRATE_TRACKER_TOKEN"); ok {
			c.Tracker.Token = strings.TrimSpace(value)
		}
	}
	if c.Tracker.TimeoutSeconds <= 0 {
		c.Tracker.TimeoutSeconds = defaultHTTPTimeoutSeconds
	}
	if strings.TrimSpace(c.Tracker.ReopenTransition) == "" {
		c.Tracker.ReopenTransition = defaultReopenTransition
	}
	if strings.TrimSpace(c.Tracker.CloseTransition) == "" {
		c.Tracker.CloseTransition = defaultCloseTransition
	}

	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	if strings.TrimSpace(c.ObjectStore.Region) == "" {
		c.ObjectStore.Region = defaultObjectStoreRegion
	}
	if c.ObjectStore.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.ObjectStore.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.ObjectStore.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.ObjectStore.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Backend = strings.ToLower(strings.TrimSpace(c.Notifications.Backend))
	if c.Notifications.Backend == "" {
		c.Notifications.Backend = defaultNotificationsBackend
	}
	if c.Notifications.SMTPPort <= 0 {
		c.Notifications.SMTPPort = defaultSMTPPort
	}
	if c.Notifications.SMTPPassword == "" {
		if value, ok := os.LookupEnv("SITEMIGRATE_SMTP_PASSWORD"); ok {
			c.Notifications.SMTPPassword = value
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Notifications.AdminEmail = strings.TrimSpace(c.Notifications.AdminEmail)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
