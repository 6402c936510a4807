package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
	FlagDir string `toml:"flag_dir"`

	// WorkRetentionDays prunes site work directories no busy record uses
	// once they are this old. Zero keeps them forever.
	WorkRetentionDays int `toml:"work_retention_days"`
}

// Store selects and configures the record store backend.
type Store struct {
	Driver        string `toml:"driver"`
	Path          string `toml:"path"`
	DSN           string `toml:"dsn"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Scheduler contains timing shared by the scan loops.
type Scheduler struct {
	PollInterval            int    `toml:"poll_interval"`
	BackoffInterval         int    `toml:"backoff_interval"`
	ShutdownGrace           int    `toml:"shutdown_grace"`
	EscalateCandidateErrors bool   `toml:"escalate_candidate_errors"`
	Identity                string `toml:"identity"`
}

// Export configures the export stage and its admission ceiling.
type Export struct {
	MaxJobs         int    `toml:"max_jobs"`
	MaxArchiveBytes int64  `toml:"max_archive_bytes"`
	Workflow        string `toml:"workflow"`
}

// Upload configures the upload stage and its admission ceiling.
type Upload struct {
	MaxJobs     int    `toml:"max_jobs"`
	Workflow    string `toml:"workflow"`
	ArtifactKey string `toml:"artifact_key"`
}

// Import configures the import checker.
type Import struct {
	ExpiryMinutes       int      `toml:"expiry_minutes"`
	ReloginIdleMinutes  int      `toml:"relogin_idle_minutes"`
	SuccessStatuses     []string `toml:"success_statuses"`
	FailureStatuses     []string `toml:"failure_statuses"`
	Workflow            string   `toml:"workflow"`
	CrossRefProperty    string   `toml:"cross_ref_property"`
	EscalateOnLookupErr bool     `toml:"escalate_on_lookup_error"`
}

// Retry configures the remote operation retry wrapper.
type Retry struct {
	MaxTries                int `toml:"max_tries"`
	DelaySeconds            int `toml:"delay_seconds"`
	InteractiveDelaySeconds int `toml:"interactive_delay_seconds"`
}

// Source contains connection settings for the platform sites are exported from.
type Source struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Target contains connection settings for the platform sites are imported into.
type Target struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tracker contains issue tracker settings used for escalation.
type Tracker struct {
	Enabled          bool   `toml:"enabled"`
	BaseURL          string `toml:"base_url"`
	Token            string `toml:"token"`
	Project          string `toml:"project"`
	ReopenTransition string `toml:"reopen_transition"`
	CloseTransition  string `toml:"close_transition"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// ObjectStore contains S3-compatible storage settings for uploaded artifacts.
type ObjectStore struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	Bucket       string `toml:"bucket"`
	Prefix       string `toml:"prefix"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// Notifications contains message delivery settings.
type Notifications struct {
	Backend           string   `toml:"backend"`
	From              string   `toml:"from"`
	SMTPHost          string   `toml:"smtp_host"`
	SMTPPort          int      `toml:"smtp_port"`
	SMTPUsername      string   `toml:"smtp_username"`
	SMTPPassword      string   `toml:"smtp_password"`
	NtfyTopic         string   `toml:"ntfy_topic"`
	RequestTimeout    int      `toml:"request_timeout"`
	AdminEmail        string   `toml:"admin_email"`
	MailRunLog        bool     `toml:"mail_run_log"`
	DefaultRecipients []string `toml:"default_recipients"`
}

// Workflow contains step definition settings.
type Workflow struct {
	DefinitionsFile string `toml:"definitions_file"`
	Variant         string `toml:"variant"`
}

// Command describes an external action module invoked by the command action.
type Command struct {
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Produces       string   `toml:"produces"`
	OutputPath     string   `toml:"output_path"`
}

// Actions contains per-action settings.
type Actions struct {
	Commands map[string]Command `toml:"commands"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the optional Prometheus listener.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for sitemigrate.
//
// Configuration sections by subsystem:
//   - Paths: data, work, log and flag directories
//   - Store: record store driver and location
//   - Scheduler, Export, Upload, Import: scan loop timing and stage ceilings
//   - Retry: remote archive retry policy
//   - Source, Target: platform endpoints
//   - Tracker, Notifications: escalation channels
//   - ObjectStore: artifact upload bucket
//   - Workflow, Actions: step definitions and external action modules
//   - Logging, Metrics: observability
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Export        Export        `toml:"export"`
	Upload        Upload        `toml:"upload"`
	Import        Import        `toml:"import"`
	Retry         Retry         `toml:"retry"`
	Source        Source        `toml:"source"`
	Target        Target        `toml:"target"`
	Tracker       Tracker       `toml:"tracker"`
	ObjectStore   ObjectStore   `toml:"object_store"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Actions       Actions       `toml:"actions"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sitemigrate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the scan loops and workers write to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir, c.Paths.FlagDir, c.RunLogDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunLogDir is where workers keep their transient per-run logs.
func (c *Config) RunLogDir() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "runs")
}

// WorkerLogDir is where spawned worker process output is captured.
func (c *Config) WorkerLogDir() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "workers")
}

// ExitFlagPath returns the sentinel file that stops the named scan loop.
func (c *Config) ExitFlagPath(scanner string) string {
	return filepath.Join(c.Paths.FlagDir, scanner+".exit")
}

// LockPath returns the single-instance lock file for the named scan loop.
func (c *Config) LockPath(scanner string) string {
	return filepath.Join(c.Paths.FlagDir, scanner+".lock")
}

// SiteWorkDir returns the scratch directory used for one site's artifacts.
func (c *Config) SiteWorkDir(linkID, siteID string) string {
	return filepath.Join(c.Paths.WorkDir, sanitizeSegment(linkID)+"-"+sanitizeSegment(siteID))
}

func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, value)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
