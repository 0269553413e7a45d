// Copyright © 2018 One Concern

// Package status declares error constants returned by token stores.
package status

import "github.com/oneconcern/condarepo/pkg/errors"

var (
	// ErrMalformedTokens indicates that the token document is not well formed
	ErrMalformedTokens = errors.New("malformed token document")

	// ErrIOFailure indicates a read or write fault on the token document streams
	ErrIOFailure = errors.New("token document I/O failure")

	// ErrInvalidUser indicates an empty user name
	ErrInvalidUser = errors.New("invalid user name")
)
