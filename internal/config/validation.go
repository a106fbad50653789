package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/interviewkit/diffsync/internal/ignore"
)

// ErrInvalid wraps every error returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Warning is a configuration problem that leaves diffsync usable in a degraded mode.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// ValidationError is a configuration problem that prevents startup.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalid
}

// Validate checks c. Warnings describe degraded but usable settings; the error,
// if any, is a ValidationErrors listing every unusable setting.
func Validate(c *Config) ([]Warning, error) {
	var warns []Warning
	var errs ValidationErrors

	warn := func(field, format string, args ...interface{}) {
		warns = append(warns, Warning{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.SessionID == "" {
		warn("session_id", "not set (INTERVIEW_TAKEN_ID); batches are filed under %q", "unknown-session")
	}

	if c.TickInterval <= 0 {
		fail("tick_interval", "must be positive, got %v", c.TickInterval)
	}
	if c.DispatchTimeout <= 0 {
		fail("dispatch_timeout", "must be positive, got %v", c.DispatchTimeout)
	}
	if c.MaxFileSize <= 0 {
		fail("max_file_size", "must be positive, got %d", c.MaxFileSize)
	}
	if _, err := ignore.New(c.IgnorePatterns); err != nil {
		fail("ignore_patterns", "%v", err)
	}

	if len(c.Sinks) == 0 {
		warn("sinks", "no sinks configured; batches are built and dropped")
	}
	seen := map[string]bool{}
	for _, name := range c.Sinks {
		if !isKnownSink(name) {
			fail("sinks", "unknown sink %q (known: %s)", name, strings.Join(KnownSinks, ", "))
			continue
		}
		if seen[name] {
			warn("sinks", "%q listed more than once", name)
		}
		seen[name] = true
	}

	if c.HasSink(SinkS3) {
		if c.S3.Bucket == "" {
			fail("s3.bucket", "required when the s3 sink is enabled")
		} else if c.S3.Bucket == DefaultBucket {
			warn("s3.bucket", "not set (AWS_BUCKET); using %q", DefaultBucket)
		}
		if c.S3.Region == "" && c.S3.Endpoint == "" {
			warn("s3.region", "not set (AWS_REGION); relying on the AWS default chain")
		}
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			warn("s3.access_key_id", "only one of access key id and secret is set; using the default credential chain")
		}
	}

	if c.HasSink(SinkHTTP) {
		if c.HTTP.URL == "" {
			fail("http.url", "required when the http sink is enabled")
		} else if u, err := url.ParseRequestURI(c.HTTP.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			fail("http.url", "must be an http or https URL, got %q", c.HTTP.URL)
		}
		if c.HTTP.Timeout <= 0 {
			fail("http.timeout", "must be positive, got %v", c.HTTP.Timeout)
		}
	}

	if c.HasSink(SinkJournal) && c.Journal.Path == "" {
		fail("journal.path", "required when the journal sink is enabled")
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		fail("dashboard.port", "must be between 0 and 65535, got %d", c.Dashboard.Port)
	}

	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		warn("log.max_size_mb", "must be positive; rotation uses the 100 MB library default")
	}

	if len(errs) > 0 {
		return warns, errs
	}
	return warns, nil
}

func isKnownSink(name string) bool {
	for _, k := range KnownSinks {
		if k == name {
			return true
		}
	}
	return false
}
