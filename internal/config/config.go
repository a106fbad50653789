// Package config loads diffsync settings from defaults, a config file and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/interviewkit/diffsync/internal/ignore"
	"github.com/interviewkit/diffsync/internal/sink"
)

// FileName is the base name searched for when no config file is given.
const FileName = "diffsync"

// Sink names accepted in the sinks list.
const (
	SinkLog     = "log"
	SinkS3      = "s3"
	SinkHTTP    = "http"
	SinkJournal = "journal"
)

// StateDir is the directory inside the workspace where diffsync keeps its own
// files. It is never watched.
const StateDir = ".diffsync"

// KnownSinks lists every accepted sink name.
var KnownSinks = []string{SinkLog, SinkS3, SinkHTTP, SinkJournal}

// DefaultBucket is used when no bucket is configured.
const DefaultBucket = "fallback-bucket"

// Config is the effective configuration of a diffsync process.
type Config struct {
	Workspace       string        `mapstructure:"workspace"`
	SessionID       string        `mapstructure:"session_id"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	IgnorePatterns  []string      `mapstructure:"ignore_patterns"`
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	SeedExisting    bool          `mapstructure:"seed_existing"`
	FlushOnStop     bool          `mapstructure:"flush_on_stop"`
	Sinks           []string      `mapstructure:"sinks"`

	S3        S3Config        `mapstructure:"s3"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// S3Config configures the object storage sink.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// HTTPConfig configures the webhook sink.
type HTTPConfig struct {
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// JournalConfig configures the local batch journal.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// DashboardConfig configures the WebSocket dashboard. Port 0 disables it.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures log output and rotation.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Verbose    bool   `mapstructure:"verbose"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Workspace:       ".",
		TickInterval:    10 * time.Second,
		DispatchTimeout: 30 * time.Second,
		IgnorePatterns:  append([]string(nil), ignore.DefaultPatterns...),
		MaxFileSize:     1 << 20,
		SeedExisting:    true,
		FlushOnStop:     true,
		Sinks:           []string{SinkLog},
		S3: S3Config{
			Bucket: DefaultBucket,
			Prefix: sink.DefaultS3Prefix,
		},
		HTTP: HTTPConfig{
			Timeout: 10 * time.Second,
			Headers: map[string]string{},
		},
		Journal: JournalConfig{
			Path: filepath.Join(StateDir, "journal.db"),
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// envBindings maps config keys to environment variables, first match wins.
var envBindings = map[string][]string{
	"workspace":            {"DIFFSYNC_WORKSPACE"},
	"session_id":           {"INTERVIEW_TAKEN_ID", "DIFFSYNC_SESSION_ID"},
	"tick_interval":        {"DIFFSYNC_TICK_INTERVAL"},
	"dispatch_timeout":     {"DIFFSYNC_DISPATCH_TIMEOUT"},
	"sinks":                {"DIFFSYNC_SINKS"},
	"s3.bucket":            {"AWS_BUCKET"},
	"s3.region":            {"AWS_REGION"},
	"s3.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"s3.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"http.url":             {"DIFFSYNC_HTTP_URL"},
	"journal.path":         {"DIFFSYNC_JOURNAL"},
}

// setDefaults registers every key so that environment bindings and Unmarshal
// see the full key set even without a config file.
func setDefaults(v *viper.Viper) {
	setDefaultMap(v, "", Default().Map())
}

func setDefaultMap(v *viper.Viper, prefix string, m map[string]interface{}) {
	for key, value := range m {
		if nested, ok := value.(map[string]interface{}); ok && len(nested) > 0 {
			setDefaultMap(v, prefix+key+".", nested)
			continue
		}
		v.SetDefault(prefix+key, value)
	}
}

// Load reads the configuration. When file is empty, diffsync.{yaml,toml,json}
// is searched in workspace and then in the user config directory; a missing
// file is not an error. A non-empty workspace overrides every other source.
func Load(file, workspace string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		if workspace != "" {
			v.AddConfigPath(workspace)
		}
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if workspace != "" {
		cfg.Workspace = workspace
	}
	cfg.normalize()
	return cfg, nil
}

// normalize trims list entries and resolves the journal path against the workspace.
func (c *Config) normalize() {
	var sinks []string
	for _, s := range c.Sinks {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sinks = append(sinks, s)
		}
	}
	c.Sinks = sinks

	if c.HTTP.Headers == nil {
		c.HTTP.Headers = map[string]string{}
	}
	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		c.Journal.Path = filepath.Join(c.Workspace, c.Journal.Path)
	}
}

// IgnoreRules returns the configured ignore patterns plus the files diffsync
// writes inside the workspace itself: the state directory, the journal with
// its WAL files, and the log file with its rotated backups.
func (c *Config) IgnoreRules() []string {
	rules := append([]string(nil), c.IgnorePatterns...)
	rules = append(rules, StateDir)

	if c.HasSink(SinkJournal) {
		if rel, ok := c.workspaceRel(c.Journal.Path); ok && !strings.HasPrefix(rel, StateDir+"/") {
			rules = append(rules, rel+"*")
		}
	}
	if rel, ok := c.workspaceRel(c.Log.File); ok {
		rules = append(rules, strings.TrimSuffix(rel, filepath.Ext(rel))+"*")
	}
	return rules
}

// workspaceRel returns p relative to the workspace in slash form, or false
// when p is empty or outside the workspace.
func (c *Config) workspaceRel(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	root, err := filepath.Abs(c.Workspace)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// HasSink reports whether name is in the sinks list.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Map returns the configuration as nested maps keyed like the config file,
// with durations rendered as strings. The secret access key is included.
func (c *Config) Map() map[string]interface{} {
	headers := make(map[string]interface{}, len(c.HTTP.Headers))
	for k, v := range c.HTTP.Headers {
		headers[k] = v
	}
	return map[string]interface{}{
		"workspace":        c.Workspace,
		"session_id":       c.SessionID,
		"tick_interval":    c.TickInterval.String(),
		"dispatch_timeout": c.DispatchTimeout.String(),
		"ignore_patterns":  c.IgnorePatterns,
		"max_file_size":    c.MaxFileSize,
		"seed_existing":    c.SeedExisting,
		"flush_on_stop":    c.FlushOnStop,
		"sinks":            c.Sinks,
		"s3": map[string]interface{}{
			"bucket":            c.S3.Bucket,
			"region":            c.S3.Region,
			"endpoint":          c.S3.Endpoint,
			"prefix":            c.S3.Prefix,
			"access_key_id":     c.S3.AccessKeyID,
			"secret_access_key": c.S3.SecretAccessKey,
		},
		"http": map[string]interface{}{
			"url":     c.HTTP.URL,
			"timeout": c.HTTP.Timeout.String(),
			"headers": headers,
		},
		"journal": map[string]interface{}{
			"path": c.Journal.Path,
		},
		"dashboard": map[string]interface{}{
			"port": c.Dashboard.Port,
		},
		"log": map[string]interface{}{
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
			"verbose":      c.Log.Verbose,
		},
	}
}

// Redacted returns Map with credentials masked, for display.
func (c *Config) Redacted() map[string]interface{} {
	m := c.Map()
	s3 := m["s3"].(map[string]interface{})
	if c.S3.SecretAccessKey != "" {
		s3["secret_access_key"] = "********"
	}
	if c.S3.AccessKeyID != "" && len(c.S3.AccessKeyID) > 4 {
		s3["access_key_id"] = c.S3.AccessKeyID[:4] + "****"
	}
	h := m["http"].(map[string]interface{})["headers"].(map[string]interface{})
	for k := range h {
		if strings.EqualFold(k, "authorization") {
			h[k] = "********"
		}
	}
	return m
}
