package errors

import (
	"errors"
	"fmt"
)

// Basic error check functions from standard library
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// appError implements the Error interface
type appError struct {
	code    ErrorCode
	message string
	err     error
	data    any
}

func (e *appError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil && e.err != nil:
		return fmt.Sprintf("%s: %v: %v", msg, e.data, e.err)
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", msg, e.err)
	}

	return msg
}

func (e *appError) Code() ErrorCode {
	return e.code
}

func (e *appError) WithMessage(msg string) Error {
	return &appError{
		code:    e.code,
		message: msg,
		err:     e.err,
		data:    e.data,
	}
}

func (e *appError) WithData(data any) Error {
	return &appError{
		code:    e.code,
		message: e.message,
		err:     e.err,
		data:    data,
	}
}

func (e *appError) GetData() any {
	return e.data
}

func (e *appError) Unwrap() error {
	return e.err
}

// Is reports whether target is a coded error with the same code, so that
// errors.Is(err, errFactory.New(code)) matches anywhere in a wrap chain.
func (e *appError) Is(target error) bool {
	var t *appError
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

type defaultFactory struct{}

func (*defaultFactory) New(code ErrorCode) Error {
	return &appError{
		code: code,
	}
}

func (*defaultFactory) Wrap(code ErrorCode, err error) Error {
	return &appError{
		code: code,
		err:  err,
	}
}

func (*defaultFactory) WithMessage(code ErrorCode, msg string) Error {
	return &appError{
		code:    code,
		message: msg,
	}
}

func (*defaultFactory) WithData(code ErrorCode, data any) Error {
	return &appError{
		code: code,
		data: data,
	}
}

// New creates a Factory instance for error creation
func New() Factory {
	return &defaultFactory{}
}

// HasCode reports whether any coded error in err's tree carries one of the
// given codes. Joined errors are searched too.
func HasCode(err error, codes ...ErrorCode) bool {
	for err != nil {
		if coded, ok := err.(Error); ok {
			for _, code := range codes {
				if coded.Code() == code {
					return true
				}
			}
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if HasCode(e, codes...) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}

	return false
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var coded Error
	if errors.As(err, &coded) {
		return coded.Code(), true
	}

	return "", false
}

// DataOf returns the payload of the first error in err's tree with the
// given code.
func DataOf(err error, code ErrorCode) (any, bool) {
	for err != nil {
		if coded, ok := err.(Error); ok && coded.Code() == code {
			return coded.GetData(), true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if data, ok := DataOf(e, code); ok {
					return data, true
				}
			}
			return nil, false
		}
		err = errors.Unwrap(err)
	}

	return nil, false
}
