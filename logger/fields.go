package logger

import "go.uber.org/zap"

// Field names shared by every strata component.
const (
	FieldSession   = "session"
	FieldDriver    = "driver"
	FieldDatabase  = "db"
	FieldOperation = "operation"
	FieldState     = "state"

	FieldKey        = "key"
	FieldType       = "type"
	FieldTID        = "tid"
	FieldCutoff     = "cutoff"
	FieldCollection = "collection"
	FieldDataSet    = "data_set"
	FieldDataSetID  = "data_set_id"
	FieldHandler    = "handler"

	FieldCount     = "count"
	FieldBatchSize = "batch_size"
	FieldError     = "error"
)

// ComponentLogger returns the global logger named after a component.
//
//	src := datasource.New(inst, driver, reg, opts, logger.ComponentLogger("datasource"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger returns parent with extra fields, or a no-op logger carrying
// nothing when parent is nil.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return OrNop(parent).With(keysAndValues...)
}
