package logger

import "codeberg.org/mutker/templogger/internal/errors"

// Logger defines the interface for logging operations. Components receive a
// Logger through their constructors instead of reaching for the package
// defaults.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	With(component string) Logger
}
