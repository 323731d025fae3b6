// Package config handles loading and validating mailindex configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/calder/mailindex/internal/maildir"
	"github.com/calder/mailindex/internal/schema"
)

// ErrInvalidConfig marks a configuration that cannot drive the server, such
// as an unknown mail version tag or a nonsensical result limit.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultResultLimit caps per-call result counts unless the config raises it.
const DefaultResultLimit = 50

// Config represents the mailindex configuration.
type Config struct {
	Mail MailConfig `toml:"mail"`

	// ResultLimit is the hard per-call cap on returned messages.
	ResultLimit int `toml:"result_limit"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// MailConfig locates the Apple Mail data directory and identifies the user.
type MailConfig struct {
	// Dir is the Apple Mail directory, normally ~/Library/Mail.
	Dir string `toml:"mail_dir"`

	// Version is the schema version subdirectory (V7..V10). Empty means
	// detect by probing for an Envelope Index, newest first.
	Version string `toml:"mail_version"`

	// PrimaryEmail is the user's own address, the default for sent-mail
	// lookups.
	PrimaryEmail string `toml:"primary_email"`
}

// DefaultHome returns the default mailindex home directory.
// Respects the MAILINDEX_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILINDEX_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailindex"
	}
	return filepath.Join(home, ".mailindex")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailindex/config.toml).
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir:     homeDir,
		ResultLimit: DefaultResultLimit,
		Mail: MailConfig{
			Dir: defaultMailDir(),
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Mail.Dir = expandPath(cfg.Mail.Dir)

	return cfg, nil
}

// Validate checks the loaded configuration and resolves the mail version,
// probing the mail directory when none is pinned.
func (c *Config) Validate() error {
	if c.ResultLimit <= 0 {
		return fmt.Errorf("%w: result_limit must be positive, got %d", ErrInvalidConfig, c.ResultLimit)
	}
	if c.Mail.Dir == "" {
		return fmt.Errorf("%w: mail_dir is required", ErrInvalidConfig)
	}

	if c.Mail.Version == "" {
		version, err := maildir.DetectVersion(c.Mail.Dir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		c.Mail.Version = version
		return nil
	}

	if _, err := schema.ForVersion(c.Mail.Version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Layout returns the resolved mail directory layout. Call Validate first so
// the version is pinned or detected.
func (c *Config) Layout() maildir.Layout {
	return maildir.Layout{Root: c.Mail.Dir, Version: c.Mail.Version}
}

// StorePath returns the path of the Envelope Index store.
func (c *Config) StorePath() string {
	return c.Layout().StorePath()
}

func defaultMailDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Mail")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
