package logger

import "go.uber.org/zap/zapcore"

// CLI -v counts. Each step adds detail:
//
//	0     warnings and errors
//	-v    lifecycle: open, init, close, dataset creation
//	-vv   saves, loads, cache hits, queries
const (
	VerbosityUser  = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
)

var verbosityLevels = []struct {
	level zapcore.Level
	name  string
}{
	VerbosityUser:  {zapcore.WarnLevel, "warn"},
	VerbosityInfo:  {zapcore.InfoLevel, "info (-v)"},
	VerbosityDebug: {zapcore.DebugLevel, "debug (-vv)"},
}

func clampVerbosity(v int) int {
	if v < VerbosityUser {
		return VerbosityUser
	}
	if v > VerbosityDebug {
		return VerbosityDebug
	}
	return v
}

// VerbosityToLevel maps a -v count to a zap level. Counts above -vv stay at debug.
func VerbosityToLevel(verbosity int) zapcore.Level {
	return verbosityLevels[clampVerbosity(verbosity)].level
}

// LevelName names the level a -v count selects.
func LevelName(verbosity int) string {
	return verbosityLevels[clampVerbosity(verbosity)].name
}
