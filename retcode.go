package rssl

import (
	"fmt"

	"github.com/pkg/errors"
)

// RetCode is the numeric outcome of a transport operation.
// Non-negative values from Read and Write are byte or message counts.
type RetCode int

const (
	RetSuccess            RetCode = 0
	RetChanInitInProgress RetCode = 2
	RetFailure            RetCode = -1
	RetBufferNoBuffers    RetCode = -4
	RetInitNotInitialized RetCode = -8
	RetWriteFlushFailed   RetCode = -9
	RetWriteCallAgain     RetCode = -10
	RetReadWouldBlock     RetCode = -11
	RetReadFDChange       RetCode = -12
	RetReadPing           RetCode = -13
	RetReadInProgress     RetCode = -15
	RetSlowReader         RetCode = -16
	RetBufferTooSmall     RetCode = -21
	RetInvalidArgument    RetCode = -22
)

var retCodeTexts = map[RetCode]string{
	RetSuccess:            "Success",
	RetChanInitInProgress: "ChanInitInProgress",
	RetFailure:            "Failure",
	RetBufferNoBuffers:    "BufferNoBuffers",
	RetInitNotInitialized: "InitNotInitialized",
	RetWriteFlushFailed:   "WriteFlushFailed",
	RetWriteCallAgain:     "WriteCallAgain",
	RetReadWouldBlock:     "ReadWouldBlock",
	RetReadFDChange:       "ReadFDChange",
	RetReadPing:           "ReadPing",
	RetReadInProgress:     "ReadInProgress",
	RetSlowReader:         "SlowReader",
	RetBufferTooSmall:     "BufferTooSmall",
	RetInvalidArgument:    "InvalidArgument",
}

func (rc RetCode) String() string {
	if s, ok := retCodeTexts[rc]; ok {
		return s
	}
	if rc > 0 {
		return fmt.Sprintf("Pending(%d)", int(rc))
	}
	return fmt.Sprintf("RetCode(%d)", int(rc))
}

// Error is the error type returned by every failing operation.
type Error struct {
	Code   RetCode // outcome class
	SysErr error   // underlying system error, if any
	Text   string  // numbered diagnostic text
}

func (e *Error) Error() string {
	if e.SysErr != nil {
		return fmt.Sprintf("%s: %v", e.Text, e.SysErr)
	}
	return e.Text
}

// newError returns an *Error with a stack trace attached.
func newError(code RetCode, sysErr error, format string, args ...interface{}) error {
	return errors.WithStack(&Error{
		Code:   code,
		SysErr: sysErr,
		Text:   fmt.Sprintf(format, args...),
	})
}

// Code returns the RetCode carried by err.
// A nil error is RetSuccess and foreign errors are RetFailure.
func Code(err error) RetCode {
	if err == nil {
		return RetSuccess
	}
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Code
	}
	return RetFailure
}

func errNotInitialized() error {
	return newError(RetInitNotInitialized, nil, "0001 RSSL not initialized")
}

func errNullArgument(what string) error {
	return newError(RetFailure, nil, "0002 Null %s passed in", what)
}
