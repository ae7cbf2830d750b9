// Package logger holds the process-wide zap logger used by the strata CLI
// and the constructors that accept an injected one.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger. It is a no-op until Initialize or Use.
	Logger = zap.NewNop().Sugar()
	// JSONOutput is set when Initialize chose the JSON encoder.
	JSONOutput bool
)

// Initialize replaces the global logger. jsonOutput selects the production
// JSON encoder; otherwise lines go through the compact console encoder.
// Both write to stderr so command output stays pipeable.
func Initialize(jsonOutput bool, verbosity int) error {
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	var zl *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		built, err := cfg.Build()
		if err != nil {
			return err
		}
		zl = built
	} else {
		zl = zap.New(zapcore.NewCore(newMinimalEncoder(), zapcore.Lock(os.Stderr), level))
	}

	JSONOutput = jsonOutput
	Logger = zl.Sugar()
	Logger.Debugw("Logger initialized", "level", LevelName(verbosity), "json", jsonOutput)
	return nil
}

// Use installs l as the global logger; nil installs a no-op.
func Use(l *zap.SugaredLogger) {
	Logger = OrNop(l)
}

// Cleanup flushes buffered entries.
func Cleanup() {
	_ = Logger.Sync()
}

// OrNop returns l, or a no-op logger when l is nil.
// Constructors accept a nil logger and normalize it with this.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Warnw logs on the global logger.
func Warnw(msg string, keysAndValues ...interface{}) { Logger.Warnw(msg, keysAndValues...) }

// Infow logs on the global logger.
func Infow(msg string, keysAndValues ...interface{}) { Logger.Infow(msg, keysAndValues...) }

// Debugw logs on the global logger.
func Debugw(msg string, keysAndValues ...interface{}) { Logger.Debugw(msg, keysAndValues...) }
