// Package skerr provides errors that carry the file and line where they were
// created or wrapped, so that a logged error shows how it travelled up the
// call stack.
package skerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace is a single frame of the call stack.
type StackTrace struct {
	File string
	Line int
}

func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// ErrorWithContext is an error that remembers where it was created along with
// any wrapping context added afterwards.
type ErrorWithContext struct {
	// Wrapped is the original error. Never nil.
	Wrapped error
	// CallStack is where the error was first created or wrapped.
	CallStack []StackTrace
	// Context holds messages added by Wrapf, outermost first.
	Context []string
}

// CallStack returns the frames of the caller's stack, skipping the first
// startAt frames. At most height frames are returned.
func CallStack(height, startAt int) []StackTrace {
	stack := []StackTrace{}
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + i + 1)
		if !ok {
			break
		}
		stack = append(stack, StackTrace{File: filepath.Base(file), Line: line})
	}
	return stack
}

// Fmt is fmt.Errorf with the call stack attached.
func Fmt(fmtStr string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(fmtStr, args...),
		CallStack: CallStack(5, 1),
	}
}

// Wrap adds the call site to err. If err is nil, Wrap returns nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrorWithContext); ok {
		// Already carries a stack.
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(5, 1),
	}
}

// Wrapf adds a message and the call site to err. If err is nil, Wrapf returns
// nil.
func Wrapf(err error, fmtStr string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(fmtStr, args...)
	if ewc, ok := err.(*ErrorWithContext); ok {
		return &ErrorWithContext{
			Wrapped:   ewc.Wrapped,
			CallStack: ewc.CallStack,
			Context:   append([]string{msg}, ewc.Context...),
		}
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(5, 1),
		Context:   []string{msg},
	}
}

// Unwrap returns the original error, dropping any context added by this
// package.
func Unwrap(err error) error {
	var ewc *ErrorWithContext
	if errors.As(err, &ewc) {
		return ewc.Wrapped
	}
	return err
}

// Error implements the error interface.
func (err *ErrorWithContext) Error() string {
	var out strings.Builder
	for _, c := range err.Context {
		out.WriteString(c)
		out.WriteString(": ")
	}
	out.WriteString(err.Wrapped.Error())
	out.WriteString(". At")
	for _, st := range err.CallStack {
		out.WriteString(" ")
		out.WriteString(st.String())
	}
	return out.String()
}

// Unwrap allows errors.Is and errors.As to see the original error.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}
