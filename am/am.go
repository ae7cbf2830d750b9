// Package am loads strata configuration ("am" as in "I am configured so").
//
// Sources merge in precedence order, lowest first:
//
//	built-in defaults < /etc/strata/am.toml < ~/.strata/am.toml < project am.toml < STRATA_* env vars
//
// The project file is found by walking up from the working directory.
package am

import (
	"fmt"

	"github.com/teranos/strata/datasource"
)

// Config is the strata configuration.
type Config struct {
	Store      StoreConfig        `mapstructure:"store" toml:"store" yaml:"store"`
	Instance   datasource.Instance `mapstructure:"instance" toml:"instance" yaml:"instance"`
	DataSource datasource.Options  `mapstructure:"datasource" toml:"datasource" yaml:"datasource"`
	Log        LogConfig          `mapstructure:"log" toml:"log" yaml:"log"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Source is memory:, sqlite:<dir> or a mongodb:// URI
	Source string `mapstructure:"source" toml:"source" yaml:"source"`

	// TimeoutSeconds bounds every CLI command (0 = no timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json" yaml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity" yaml:"verbosity"` // 0 warn, 1 info, 2 debug
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// String returns a one-line summary of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Store: %s, Instance: %s, ReadOnly: %t, NonTemporal: %t}",
		c.Store.Source, c.Instance, c.DataSource.ReadOnly, c.DataSource.NonTemporal)
}
