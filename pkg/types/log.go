package types

// Logger is the logging contract shared across the module. Fields are
// structured zap fields; the zap-backed implementation drops values of any
// other type instead of rendering them.
type Logger interface {
	// Debug logs a debug message with the given fields.
	Debug(msg string, fields ...interface{})
	// Info logs an info message with the given fields.
	Info(msg string, fields ...interface{})
	// Warn logs a warn message with the given fields.
	Warn(msg string, fields ...interface{})
	// Error logs an error message with the given fields.
	Error(msg string, fields ...interface{})
	// Fatalf logs a fatal message with the given fields and exits the process.
	Fatalf(msg string, fields ...interface{})
}
