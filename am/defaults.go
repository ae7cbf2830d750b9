package am

import (
	"github.com/spf13/viper"

	"github.com/teranos/strata/datasource"
)

// Default values
const (
	DefaultSource         = "memory:"
	DefaultInstanceName   = "local"
	DefaultInstanceEnv    = "default"
	DefaultTimeoutSeconds = 30
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.source", DefaultSource)
	v.SetDefault("store.timeout_seconds", DefaultTimeoutSeconds)

	// A fresh checkout talks to a throwaway test database
	v.SetDefault("instance.type", string(datasource.Test))
	v.SetDefault("instance.name", DefaultInstanceName)
	v.SetDefault("instance.env", DefaultInstanceEnv)

	v.SetDefault("datasource.read_only", false)
	v.SetDefault("datasource.non_temporal", false)
	// The CLI runs one command per process, so test databases outlive it
	v.SetDefault("datasource.keep_db", true)

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindSensitiveEnvVars binds settings whose environment names do not follow
// the STRATA_<SECTION>_<KEY> pattern.
func BindSensitiveEnvVars(v *viper.Viper) {
	// Connection strings can carry credentials
	v.BindEnv("store.source", "STRATA_SOURCE", "STRATA_STORE_SOURCE")
	v.BindEnv("instance.type", "STRATA_INSTANCE_TYPE")
}

// Source returns the store source, falling back to the default.
func (c *Config) Source() string {
	if c.Store.Source == "" {
		return DefaultSource
	}
	return c.Store.Source
}
