package datasource

import (
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/docstore/memory"
	"github.com/teranos/strata/docstore/mongo"
	"github.com/teranos/strata/docstore/sqlite"
	"github.com/teranos/strata/errors"
)

// NewDriver selects a backend from a source string:
//
//	memory:              in-process, lost on exit
//	sqlite:<dir>         one SQLite file per database under dir
//	mongodb://...        a MongoDB deployment
func NewDriver(source string, log *zap.SugaredLogger) (docstore.Driver, error) {
	switch {
	case source == "memory:" || source == "memory":
		return memory.NewDriver(log), nil
	case strings.HasPrefix(source, "sqlite:"):
		dir := strings.TrimPrefix(source, "sqlite:")
		if dir == "" {
			return nil, errors.WithHint(
				errors.NewPrecondition("sqlite source has no directory"),
				"pass a source of the form sqlite:<dir>")
		}
		return sqlite.NewDriver(dir, log), nil
	case strings.HasPrefix(source, "mongodb://"), strings.HasPrefix(source, "mongodb+srv://"):
		return mongo.NewDriver(source, log), nil
	}
	return nil, errors.WithHint(
		errors.NewPrecondition("unknown source %q", source),
		"use memory:, sqlite:<dir> or a mongodb:// URI")
}
