package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/interviewkit/diffsync/internal/ignore"
)

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
			os.Unsetenv(env)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if cfg.Workspace != dir {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, dir)
	}
	if cfg.TickInterval != 10*time.Second || cfg.DispatchTimeout != 30*time.Second {
		t.Errorf("intervals = %v, %v", cfg.TickInterval, cfg.DispatchTimeout)
	}
	if len(cfg.IgnorePatterns) != 8 {
		t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0] != SinkLog {
		t.Errorf("Sinks = %v, want [log]", cfg.Sinks)
	}
	if cfg.S3.Bucket != DefaultBucket || cfg.S3.Prefix != "coding-snapshots" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
	if want := filepath.Join(dir, ".diffsync", "journal.db"); cfg.Journal.Path != want {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, want)
	}
	if cfg.MaxFileSize != 1<<20 || !cfg.SeedExisting {
		t.Errorf("MaxFileSize = %d, SeedExisting = %v", cfg.MaxFileSize, cfg.SeedExisting)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTERVIEW_TAKEN_ID", "iv-42")
	t.Setenv("DIFFSYNC_SESSION_ID", "ignored")
	t.Setenv("DIFFSYNC_TICK_INTERVAL", "2s")
	t.Setenv("DIFFSYNC_SINKS", "s3,log")
	t.Setenv("AWS_BUCKET", "snapshots")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SessionID != "iv-42" {
		t.Errorf("SessionID = %q, want iv-42", cfg.SessionID)
	}
	if cfg.TickInterval != 2*time.Second {
		t.Errorf("TickInterval = %v, want 2s", cfg.TickInterval)
	}
	if !cfg.HasSink(SinkS3) || !cfg.HasSink(SinkLog) {
		t.Errorf("Sinks = %v", cfg.Sinks)
	}
	if cfg.S3.Bucket != "snapshots" || cfg.S3.Region != "eu-west-1" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
}

func TestLoad_FileInWorkspace(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yaml := `session_id: from-file
tick_interval: 5s
sinks: [log, http]
http:
  url: https://example.com/hook
  headers:
    X-Token: abc
dashboard:
  port: 8787
`
	if err := os.WriteFile(filepath.Join(dir, "diffsync.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !strings.HasSuffix(cfg.File, "diffsync.yaml") {
		t.Errorf("File = %q", cfg.File)
	}
	if cfg.SessionID != "from-file" || cfg.TickInterval != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.HTTP.URL != "https://example.com/hook" || cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.HTTP.Headers["x-token"] != "abc" && cfg.HTTP.Headers["X-Token"] != "abc" {
		t.Errorf("Headers = %v", cfg.HTTP.Headers)
	}
	if cfg.Dashboard.Port != 8787 {
		t.Errorf("Dashboard.Port = %d", cfg.Dashboard.Port)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), ""); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	for _, format := range []string{FormatTOML, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			path := filepath.Join(dir, "diffsync."+format)

			want := Default()
			want.SessionID = "round-trip"
			want.TickInterval = 3 * time.Second
			want.Sinks = []string{SinkLog, SinkJournal}
			want.S3.Region = "us-east-2"

			if err := WriteFile(path, want, "", false); err != nil {
				t.Fatalf("WriteFile() failed: %v", err)
			}
			if err := WriteFile(path, want, "", false); err == nil {
				t.Error("WriteFile() should refuse to overwrite without force")
			}

			got, err := Load(path, dir)
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if got.SessionID != want.SessionID || got.TickInterval != want.TickInterval {
				t.Errorf("got %+v", got)
			}
			if !got.HasSink(SinkJournal) || got.S3.Region != "us-east-2" {
				t.Errorf("got sinks %v, s3 %+v", got.Sinks, got.S3)
			}
		})
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Default(), "ini"); err == nil {
		t.Error("Encode() should reject unknown formats")
	}
}

func TestEncodeRedacted(t *testing.T) {
	cfg := Default()
	cfg.S3.AccessKeyID = "AKIAEXAMPLE"
	cfg.S3.SecretAccessKey = "super-secret"
	cfg.HTTP.Headers = map[string]string{"Authorization": "Bearer xyz"}

	var buf bytes.Buffer
	if err := EncodeRedacted(&buf, cfg, FormatYAML); err != nil {
		t.Fatalf("EncodeRedacted() failed: %v", err)
	}
	out := buf.String()
	for _, secret := range []string{"super-secret", "AKIAEXAMPLE", "Bearer xyz"} {
		if strings.Contains(out, secret) {
			t.Errorf("redacted output contains %q:\n%s", secret, out)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantWarn  string
		wantField string
	}{
		{
			name:     "missing session warns",
			modify:   func(c *Config) {},
			wantWarn: "session_id",
		},
		{
			name:      "zero tick interval",
			modify:    func(c *Config) { c.SessionID = "s"; c.TickInterval = 0 },
			wantField: "tick_interval",
		},
		{
			name:      "unknown sink",
			modify:    func(c *Config) { c.SessionID = "s"; c.Sinks = []string{"kafka"} },
			wantField: "sinks",
		},
		{
			name:      "bad ignore pattern",
			modify:    func(c *Config) { c.SessionID = "s"; c.IgnorePatterns = []string{"[abc"} },
			wantField: "ignore_patterns",
		},
		{
			name:      "http without url",
			modify:    func(c *Config) { c.SessionID = "s"; c.Sinks = []string{SinkHTTP} },
			wantField: "http.url",
		},
		{
			name:     "s3 with fallback bucket warns",
			modify:   func(c *Config) { c.SessionID = "s"; c.Sinks = []string{SinkS3}; c.S3.Region = "r" },
			wantWarn: "s3.bucket",
		},
		{
			name:      "dashboard port out of range",
			modify:    func(c *Config) { c.SessionID = "s"; c.Dashboard.Port = 70000 },
			wantField: "dashboard.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			warns, err := Validate(cfg)

			if tt.wantWarn != "" {
				found := false
				for _, w := range warns {
					if w.Field == tt.wantWarn {
						found = true
					}
				}
				if !found {
					t.Errorf("warnings = %v, want one for %s", warns, tt.wantWarn)
				}
			}

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() error = %v, want ErrInvalid", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) || verrs[0].Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %s", err, tt.wantField)
			}
		})
	}
}

func TestIgnoreRules(t *testing.T) {
	ws := t.TempDir()

	tests := []struct {
		name    string
		setup   func(c *Config)
		ignored []string
		tracked []string
	}{
		{
			name:    "default journal",
			setup:   func(c *Config) { c.Sinks = []string{SinkJournal} },
			ignored: []string{".diffsync/journal.db", ".diffsync/journal.db-wal", ".diffsync/journal.db-shm"},
			tracked: []string{"main.go", "journal.db"},
		},
		{
			name: "journal elsewhere in workspace",
			setup: func(c *Config) {
				c.Sinks = []string{SinkJournal}
				c.Journal.Path = filepath.Join(ws, "data", "uploads.db")
			},
			ignored: []string{"data/uploads.db", "data/uploads.db-wal"},
			tracked: []string{"data/schema.sql"},
		},
		{
			name: "journal outside workspace",
			setup: func(c *Config) {
				c.Sinks = []string{SinkJournal}
				c.Journal.Path = filepath.Join(t.TempDir(), "uploads.db")
			},
			tracked: []string{"uploads.db"},
		},
		{
			name: "log file in workspace",
			setup: func(c *Config) {
				c.IgnorePatterns = nil
				c.Log.File = filepath.Join(ws, "logs", "diffsync.log")
			},
			ignored: []string{"logs/diffsync.log", "logs/diffsync-2024-01-02T03-04-05.000.log.gz"},
			tracked: []string{"logs/app.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Workspace = ws
			c.normalize()
			tt.setup(c)

			rs, err := ignore.New(c.IgnoreRules())
			if err != nil {
				t.Fatalf("ignore.New() failed: %v", err)
			}
			for _, p := range tt.ignored {
				if !rs.Match(p) {
					t.Errorf("%s should be ignored by %v", p, c.IgnoreRules())
				}
			}
			for _, p := range tt.tracked {
				if rs.Match(p) {
					t.Errorf("%s should not be ignored by %v", p, c.IgnoreRules())
				}
			}
			if len(c.IgnorePatterns) > 0 && len(c.IgnorePatterns) == len(c.IgnoreRules()) {
				t.Error("IgnoreRules() must not be the configured patterns alone")
			}
		})
	}
}
