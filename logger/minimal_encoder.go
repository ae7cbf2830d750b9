package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Everforest Dark palette
var (
	colorFg          = "\x1b[38;5;223m"
	colorGreenBright = "\x1b[38;5;108m"
	colorGreenMid    = "\x1b[38;5;107m"
	colorGreenDeep   = "\x1b[38;5;65m"
	colorAqua        = "\x1b[38;5;109m"
	colorOrange      = "\x1b[38;5;208m"
	colorYellow      = "\x1b[38;5;179m"
	colorRed         = "\x1b[38;5;167m"
	colorRedBg       = "\x1b[48;5;52m"
	colorYellowBg    = "\x1b[48;5;58m"
)

var bufferPool = buffer.NewPool()

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  d.lookup  Loaded record  A;1 @common 65f1c2...  3ms"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	final.AppendString(colorGreenMid)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only shown when it is not INFO
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorFg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if vals := extractFieldValues(fields); vals != "" {
		final.AppendString("  ")
		final.AppendString(vals)
	}

	final.AppendString("\n")
	return final, nil
}

func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return colorGreenDeep + "DEBUG" + colorReset
	case zapcore.WarnLevel:
		return colorBold + colorYellowBg + colorYellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + colorRedBg + colorRed + "ERROR" + colorReset
	default:
		return colorBold + colorRedBg + colorRed + level.CapitalString() + colorReset
	}
}

// colorComponent picks a stable color per component name
func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	switch hash % 3 {
	case 0:
		return colorGreenBright
	case 1:
		return colorGreenDeep
	default:
		return colorOrange
	}
}

// abbreviateName shortens component names: datasource.lookup -> d.lookup
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue extracts the value from a zap field, handling different field types
func getFieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	}
	if field.Interface != nil {
		if s, ok := field.Interface.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// extractFieldValues pulls the values of well-known fields in a fixed order.
// Unknown fields are left to JSON mode.
func extractFieldValues(fields []zapcore.Field) string {
	var key, dataSet, id, coll, handler, count, errText string

	for _, field := range fields {
		switch field.Key {
		case FieldKey:
			key = getFieldValue(field)
		case FieldDataSet, FieldDataSetID:
			dataSet = getFieldValue(field)
		case FieldTID:
			id = getFieldValue(field)
		case FieldCollection:
			coll = getFieldValue(field)
		case FieldHandler:
			handler = getFieldValue(field)
		case FieldCount:
			count = getFieldValue(field)
		case FieldError:
			errText = getFieldValue(field)
		}
	}

	var values []string
	if coll != "" {
		values = append(values, colorOrange+coll+colorReset)
	}
	if key != "" {
		values = append(values, colorAqua+key+colorReset)
	}
	if dataSet != "" {
		values = append(values, colorFg+"@"+dataSet+colorReset)
	}
	if id != "" {
		values = append(values, colorGreenDeep+id+colorReset)
	}
	if count != "" {
		values = append(values, colorGreenBright+count+colorReset+" docs")
	}
	if handler != "" {
		values = append(values, colorOrange+"."+handler+colorReset)
	}
	if errText != "" {
		values = append(values, colorRed+errText+colorReset)
	}

	return strings.Join(values, " ")
}
