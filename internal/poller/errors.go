package poller

import "codeberg.org/mutker/templogger/internal/errors"

const (
	ErrTickPanic       = errors.ErrorCode("poller_tick_panic")
	ErrTooManyFailures = errors.ErrorCode("poller_too_many_failures")
)

func init() {
	errors.RegisterMessage(ErrTickPanic, "Polling tick panicked")
	errors.RegisterMessage(ErrTooManyFailures, "Too many failed reads in a row")
}
