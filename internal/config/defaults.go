package config

const (
	defaultConfigPath              = "~/.config/sitemigrate/config.toml"
	defaultDataDir                 = "~/.local/share/sitemigrate"
	defaultLogDir                  = "~/.local/share/sitemigrate/logs"
	defaultStoreDriver             = "sqlite"
	defaultStoreFile               = "records.db"
	defaultBusyTimeoutMS           = 5000
	defaultPollInterval            = 30
	defaultBackoffInterval         = 60
	defaultShutdownGrace           = 30
	defaultExportMaxJobs           = 4
	defaultExportMaxArchiveBytes   = 10 << 30
	defaultExportWorkflow          = "export"
	defaultUploadMaxJobs           = 2
	defaultUploadWorkflow          = "upload"
	defaultUploadArtifactKey       = "file-fixed-zip"
	defaultImportExpiryMinutes     = 24 * 60
	defaultImportReloginIdle       = 30
	defaultImportWorkflow          = "update"
	defaultImportCrossRefProperty  = "migration.imported_site_id"
	defaultRetryMaxTries           = 3
	defaultRetryDelaySeconds       = 300
	defaultRetryInteractiveSeconds = 10
	defaultHTTPTimeoutSeconds      = 60
	defaultObjectStoreRegion       = "us-east-1"
	defaultObjectStorePrefix       = "sitemigrate/"
	defaultNotificationsBackend    = "none"
	defaultSMTPPort                = 587
	defaultNotifyRequestTimeout    = 10
	defaultReopenTransition        = "reopen"
	defaultCloseTransition         = "close"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultWorkRetentionDays       = 7
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:           defaultDataDir,
			LogDir:            defaultLogDir,
			WorkRetentionDays: defaultWorkRetentionDays,
		},
		Store: Store{
			Driver:        defaultStoreDriver,
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Scheduler: Scheduler{
			PollInterval:    defaultPollInterval,
			BackoffInterval: defaultBackoffInterval,
			ShutdownGrace:   defaultShutdownGrace,
		},
		Export: Export{
			MaxJobs:         defaultExportMaxJobs,
			MaxArchiveBytes: defaultExportMaxArchiveBytes,
			Workflow:        defaultExportWorkflow,
		},
		Upload: Upload{
			MaxJobs:     defaultUploadMaxJobs,
			Workflow:    defaultUploadWorkflow,
			ArtifactKey: defaultUploadArtifactKey,
		},
		Import: Import{
			ExpiryMinutes:      defaultImportExpiryMinutes,
			ReloginIdleMinutes: defaultImportReloginIdle,
			SuccessStatuses:    []string{"completed", "success"},
			FailureStatuses:    []string{"failed", "error", "aborted"},
			Workflow:           defaultImportWorkflow,
			CrossRefProperty:   defaultImportCrossRefProperty,
		},
		Retry: Retry{
			MaxTries:                defaultRetryMaxTries,
			DelaySeconds:            defaultRetryDelaySeconds,
			InteractiveDelaySeconds: defaultRetryInteractiveSeconds,
		},
		Source: Source{
			TimeoutSeconds: defaultHTTPTimeoutSeconds,
		},
		Target: Target{
			TimeoutSeconds: defaultHTTPTimeoutSeconds,
		},
		Tracker: Tracker{
			ReopenTransition: defaultReopenTransition,
			CloseTransition:  defaultCloseTransition,
			TimeoutSeconds:   defaultHTTPTimeoutSeconds,
		},
		ObjectStore: ObjectStore{
			Region: defaultObjectStoreRegion,
			Prefix: defaultObjectStorePrefix,
		},
		Notifications: Notifications{
			Backend:        defaultNotificationsBackend,
			SMTPPort:       defaultSMTPPort,
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Actions: Actions{
			Commands: map[string]Command{},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
