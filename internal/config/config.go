// Package config loads the coordinator's runtime options document, an
// external collaborator per spec.md §1 wired here with the teacher's own
// go.yaml.in/yaml/v3 + environment-substitution idiom.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"go.yaml.in/yaml/v3"
)

// Config is the coordinator's runtime options (spec.md §6's "Recognized
// runtime options"), plus the filesystem roots and builder invocation. It
// is decoded from the top level of its own YAML file, which names the
// catalog document by path.
type Config struct {
	BaseDir       string   `yaml:"base_dir"`
	CatalogPath   string   `yaml:"catalog"`
	BuilderCmd    []string `yaml:"builder_cmd"`
	MaxBuilds     int      `yaml:"max_builds,omitempty"`
	CancelTimeout string   `yaml:"cancel_timeout,omitempty"`
	KeepTmp       bool     `yaml:"keep_tmp,omitempty"`
	CacheSizeCap  string   `yaml:"cache_size_cap,omitempty"` // e.g. "10g", parsed with docker/go-units
	LogRotateSize string   `yaml:"log_rotate_size,omitempty"`
	Provider      string   `yaml:"provider,omitempty"`
	Region        string   `yaml:"region,omitempty"`
}

// ValidationError is a field-scoped configuration problem, in the same
// shape as the teacher's internal/config.ValidationError.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field %q: %s", e.Field, e.Message)
}

// Load reads path, applies environment-variable substitution, unmarshals
// the YAML document, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = substituteEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// substituteEnvVars expands ${VAR}, ${VAR:-default}, and ${VAR:+alternative}
// references in a YAML document. It delegates the brace-matching itself to
// os.Expand and only supplies the lookup function, so a default or
// alternative value that itself contains a bare $VAR reference is
// resolved by recursing into expandRef rather than by re-scanning the
// whole document to a fixed point. os.Expand ends a braced reference at
// its first closing brace, so a braced ${...} nested inside another is
// not supported. Bare $VAR references anywhere in the document are
// expanded as well.
func substituteEnvVars(data []byte) []byte {
	return []byte(os.Expand(string(data), expandRef))
}

// expandRef is the os.Expand mapping function for one ${...} reference.
// ref is everything between the braces, e.g. "VAR", "VAR:-default", or
// "VAR:+alternative".
func expandRef(ref string) string {
	if name, def, ok := strings.Cut(ref, ":-"); ok {
		if v := os.Getenv(strings.TrimSpace(name)); v != "" {
			return v
		}
		return os.Expand(strings.TrimSpace(def), expandRef)
	}
	if name, alt, ok := strings.Cut(ref, ":+"); ok {
		if os.Getenv(strings.TrimSpace(name)) != "" {
			return os.Expand(strings.TrimSpace(alt), expandRef)
		}
		return ""
	}
	return os.Getenv(strings.TrimSpace(ref))
}

// Validate checks required fields and parses the size/duration strings.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseDir == "" {
		errs = append(errs, ValidationError{Field: "base_dir", Message: "base directory is required"})
	}
	if c.CatalogPath == "" {
		errs = append(errs, ValidationError{Field: "catalog", Message: "catalog path is required"})
	}
	if len(c.BuilderCmd) == 0 {
		errs = append(errs, ValidationError{Field: "builder_cmd", Message: "builder command must be a non-empty argv vector"})
	}
	if c.MaxBuilds < 0 {
		errs = append(errs, ValidationError{Field: "max_builds", Message: "must be non-negative"})
	}

	if c.CancelTimeout != "" {
		if _, err := c.CancelTimeoutDuration(); err != nil {
			errs = append(errs, ValidationError{Field: "cancel_timeout", Message: err.Error()})
		}
	}
	if c.CacheSizeCap != "" {
		if _, err := units.FromHumanSize(c.CacheSizeCap); err != nil {
			errs = append(errs, ValidationError{Field: "cache_size_cap", Message: err.Error()})
		}
	}
	if c.LogRotateSize != "" {
		if _, err := units.FromHumanSize(c.LogRotateSize); err != nil {
			errs = append(errs, ValidationError{Field: "log_rotate_size", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("validation failed:\n%s", strings.Join(msgs, "\n"))
	}
	return nil
}

// CancelTimeoutDuration parses CancelTimeout, defaulting to 30s when
// unset.
func (c *Config) CancelTimeoutDuration() (time.Duration, error) {
	if c.CancelTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(c.CancelTimeout)
}
