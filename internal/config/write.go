package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported config file formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Encode writes c to w in the given format.
func Encode(w io.Writer, c *Config, format string) error {
	return encodeMap(w, c.Map(), format)
}

// EncodeRedacted writes c to w with credentials masked.
func EncodeRedacted(w io.Writer, c *Config, format string) error {
	return encodeMap(w, c.Redacted(), format)
}

func encodeMap(w io.Writer, m map[string]interface{}, format string) error {
	switch strings.ToLower(format) {
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(m); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want toml or yaml)", format)
	}
	return nil
}

// WriteFile writes c to path. The format is taken from the extension when
// format is empty. Existing files are not overwritten unless force is set.
func WriteFile(path string, c *Config, format string, force bool) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	var buf bytes.Buffer
	if err := Encode(&buf, c, format); err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// may contain credentials
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
