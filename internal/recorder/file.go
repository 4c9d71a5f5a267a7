package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"go.uber.org/multierr"
)

const (
	// DirFileName is used when the destination is a directory.
	DirFileName = "tmp_log.csv"
	// TimeLayout is the timestamp format of a log line, local time.
	TimeLayout = "2006-01-02 15:04:05"

	logFilePerm = 0o644
)

// File appends samples to a text file, one "timestamp,value" line each. The
// file is opened and closed on every append, so no descriptor is held between
// ticks and external tools may read or move the file at any time.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file the next append goes to. It is resolved on every
// call: a destination that is a directory at that moment means DirFileName
// inside it.
func (f *File) Path() string {
	return ResolvePath(f.path)
}

// ResolvePath maps a configured destination to the log file path.
func ResolvePath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DirFileName)
	}
	return path
}

func (f *File) Append(_ context.Context, s Sample) (err error) {
	errFactory := errors.New()

	path := f.Path()
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
	if err != nil {
		return errFactory.Wrap(ErrWrite, err).WithData(path)
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil {
			err = multierr.Append(err, errFactory.Wrap(ErrWrite, cerr).WithData(path))
		}
	}()

	if _, err := fh.WriteString(FormatLine(s)); err != nil {
		return errFactory.Wrap(ErrWrite, err).WithData(path)
	}

	return nil
}

// FormatLine renders a sample as it is stored, newline included. Values
// always carry four decimals.
func FormatLine(s Sample) string {
	return s.Timestamp.Format(TimeLayout) + "," + strconv.FormatFloat(s.Value, 'f', 4, 64) + "\n"
}

// ParseLine reads a line written by FormatLine. The timestamp is interpreted
// in loc, or local time when loc is nil.
func ParseLine(line string, loc *time.Location) (Sample, error) {
	errFactory := errors.New()

	if loc == nil {
		loc = time.Local
	}
	ts, value, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return Sample{}, errFactory.WithData(ErrParseLine, line)
	}
	t, err := time.ParseInLocation(TimeLayout, ts, loc)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrParseLine, err).WithData(line)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Sample{}, errFactory.Wrap(ErrParseLine, err).WithData(line)
	}

	return Sample{Timestamp: t, Value: v}, nil
}
