package recorder

import "codeberg.org/mutker/templogger/internal/errors"

const (
	ErrWrite     = errors.ErrorCode("recorder_write_failed")
	ErrParseLine = errors.ErrorCode("recorder_parse_line_failed")
)

func init() {
	errors.RegisterMessage(ErrWrite, "Failed to write sample")
	errors.RegisterMessage(ErrParseLine, "Malformed sample line")
}

// IsWriteError reports whether err is a failed append.
func IsWriteError(err error) bool {
	return errors.HasCode(err, ErrWrite)
}
