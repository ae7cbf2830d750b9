package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/datasource"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/tid"
)

// app carries what the root command resolved for its subcommands.
type app struct {
	cfg *am.Config
}

// storeFlags selects the database a command works on. Unset flags fall back
// to the configuration.
type storeFlags struct {
	source      string
	environment string
	readOnly    bool
	nonTemporal bool
	cutoff      string
}

func (f *storeFlags) bind(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&f.source, "source", "", "Store: memory:, sqlite:<dir> or a mongodb:// URI")
	cmd.Flags().StringVar(&f.environment, "environment", "", `Instance as "type;name;env", e.g. "test;fixture;dev"`)
	cmd.Flags().BoolVar(&f.readOnly, "read-only", false, "Refuse every write")
	cmd.Flags().BoolVar(&f.nonTemporal, "non-temporal", false, "Keep only the latest version of each key")
	cmd.Flags().StringVar(&f.cutoff, "cutoff", "", "Read as of this TID (implies --read-only)")
	if required {
		_ = cmd.MarkFlagRequired("source")
		_ = cmd.MarkFlagRequired("environment")
	}
}

// resolve merges the flags over cfg.
func (f *storeFlags) resolve(cfg *am.Config) (string, datasource.Instance, datasource.Options, error) {
	source := cfg.Source()
	if f.source != "" {
		source = f.source
	}
	inst := cfg.Instance
	if f.environment != "" {
		parsed, err := datasource.ParseInstance(f.environment)
		if err != nil {
			return "", datasource.Instance{}, datasource.Options{}, errors.Wrap(err, "--environment")
		}
		inst = parsed
	}
	opts := cfg.DataSource
	opts.ReadOnly = opts.ReadOnly || f.readOnly
	opts.NonTemporal = opts.NonTemporal || f.nonTemporal
	if f.cutoff != "" {
		c, err := tid.Parse(f.cutoff)
		if err != nil {
			return "", datasource.Instance{}, datasource.Options{}, errors.Wrap(err, "--cutoff")
		}
		opts.Cutoff = &c
	}
	if !inst.IsTest() {
		opts.KeepDB = false
	}
	return source, inst, opts, nil
}

// open initializes a data source for cmd. The returned release closes it
// and cancels the command timeout.
func (a *app) open(cmd *cobra.Command, f *storeFlags) (context.Context, *datasource.DataSource, func(), error) {
	source, inst, opts, err := f.resolve(a.cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := func() {}
	if a.cfg.Store.TimeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.Store.TimeoutSeconds)*time.Second)
	}

	log := logger.ComponentLogger("cli")
	driver, err := datasource.NewDriver(source, log)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	reg := record.NewRegistry()
	if RegisterTypes != nil {
		if err := RegisterTypes(reg); err != nil {
			cancel()
			return nil, nil, nil, errors.Wrap(err, "register application types")
		}
	}
	ds, err := datasource.New(inst, driver, reg, opts, log)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if err := ds.Init(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}

	release := func() {
		if err := ds.Close(context.Background()); err != nil {
			log.Warnw("Failed to close data source", logger.FieldError, err)
		}
		cancel()
	}
	return ctx, ds, release, nil
}
