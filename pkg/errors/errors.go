// Copyright © 2018 One Concern

// Package errors augments the standard errors
// with sentinel errors that may wrap a cause
// without losing their identity.
package errors

import (
	stderr "errors"
)

var _ error = New("")

// New sentinel Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// Wrapping returns a copy of the sentinel that carries the cause, so that
// shared sentinels are never mutated and errors.Is still matches the sentinel.
type Error struct {
	msg      string
	err      error
	sentinel *Error
}

// Error message, with the wrapped cause if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	root := e
	if e.sentinel != nil {
		root = e.sentinel
	}
	return &Error{msg: e.msg, err: err, sentinel: root}
}

// WrapMessage wraps a cause built from a plain message
func (e *Error) WrapMessage(msg string) *Error {
	return e.Wrap(stderr.New(msg))
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.sentinel != nil && e.sentinel == t)
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
