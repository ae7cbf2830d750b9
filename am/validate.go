package am

import (
	"github.com/teranos/strata/datasource"
	"github.com/teranos/strata/errors"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	// Store source: empty means the default
	if c.Store.Source != "" {
		if _, err := datasource.NewDriver(c.Store.Source, nil); err != nil {
			return errors.Wrap(err, "store.source")
		}
	}
	if c.Store.TimeoutSeconds < 0 {
		return errors.NewPrecondition("store.timeout_seconds must be >= 0, got %d", c.Store.TimeoutSeconds)
	}

	if err := c.Instance.Validate(""); err != nil {
		return errors.Wrap(err, "instance")
	}

	if c.Log.Verbosity < 0 {
		return errors.NewPrecondition("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}
