package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// Output formats for Marshal.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Marshal renders the config as TOML or YAML.
func (c *Config) Marshal(format string) ([]byte, error) {
	switch format {
	case FormatTOML, "":
		data, err := toml.Marshal(c)
		return data, errors.Wrap(err, "failed to marshal config as toml")
	case FormatYAML:
		data, err := yaml.Marshal(c)
		return data, errors.Wrap(err, "failed to marshal config as yaml")
	}
	return nil, errors.WithHint(
		errors.NewPrecondition("unknown config format %q", format),
		"use toml or yaml")
}

// Save writes the config as TOML to path, keeping rotating backups of the
// previous file.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid config")
	}
	data, err := c.Marshal(FormatTOML)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config %s", path)
	}
	return nil
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "path", back3, logger.FieldError, err)
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
