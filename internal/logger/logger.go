package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"codeberg.org/mutker/templogger/internal/errors"
	"github.com/rs/zerolog"
)

const (
	generalLogName = "general.log"
	timeFormat     = "2006-01-02 15:04:05"
	defaultDirPerm = 0o755
	logFilePerm    = 0o644
)

var (
	std    Logger = Nop()
	closer io.Closer
)

// Options configures a Logger.
type Options struct {
	// Level is one of debug, info, warn, warning or error.
	Level string
	// Console receives human readable output. Defaults to os.Stdout.
	Console io.Writer
	// Dir, when set, also writes plain lines to Dir/general.log.
	Dir string
	// IsService drops console timestamps; journald adds its own.
	IsService bool
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

type zlogger struct {
	zl zerolog.Logger
}

// New builds a Logger from opts. The returned closer releases the general log
// file, if one was opened.
func New(opts Options) (Logger, io.Closer, error) {
	errFactory := errors.New()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := zerolog.ConsoleWriter{
		Out:        opts.Console,
		TimeFormat: timeFormat,
		NoColor:    opts.IsService,
	}
	if console.Out == nil {
		console.Out = os.Stdout
	}
	if opts.IsService {
		console.TimeFormat = ""
		console.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	writers := []io.Writer{console}
	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, defaultDirPerm); err != nil {
			return nil, nil, errFactory.Wrap(errors.ErrInitLogger, err)
		}
		file, err = os.OpenFile(filepath.Join(opts.Dir, generalLogName),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
		if err != nil {
			return nil, nil, errFactory.Wrap(errors.ErrInitLogger, err)
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: timeFormat,
			NoColor:    true,
		})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	if file == nil {
		return &zlogger{zl: zl}, nopCloser{}, nil
	}
	return &zlogger{zl: zl}, file, nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zlogger{zl: zerolog.Nop()}
}

// FromZerolog wraps an existing zerolog logger, mostly for tests that want to
// capture output in a buffer.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zlogger{zl: zl}
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

func (l *zlogger) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l *zlogger) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l *zlogger) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l *zlogger) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l *zlogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{l.zl.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

func (l *zlogger) With(component string) Logger {
	return &zlogger{zl: l.zl.With().Str("component", component).Logger()}
}

// Init builds the process-wide logger used by the package level helpers.
// Call Close before exit to release the general log file.
func Init(opts Options) error {
	l, c, err := New(opts)
	if err != nil {
		return err
	}
	std = l
	closer = c

	return nil
}

// Default returns the process-wide logger.
func Default() Logger {
	return std
}

// Close releases the process-wide logger's file.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil

	return err
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return std.Debug()
}

// Info logs an info message
func Info() *LogEvent {
	return std.Info()
}

// Warn logs a warning message
func Warn() *LogEvent {
	return std.Warn()
}

// Error logs an error message
func Error() *LogEvent {
	return std.Error()
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return std.ErrorWithCode(err)
}

// Fatal logs the error and exits the program after releasing the log file.
func Fatal(err error) {
	var coded errors.Error
	if errors.As(err, &coded) {
		ErrorWithCode(coded).Msg("fatal")
	} else {
		Error().Err(err).Msg("fatal")
	}
	_ = Close()
	os.Exit(1)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
