// Copyright © 2018 One Concern

// Package status declares error constants returned by the repodata engine.
package status

import "github.com/oneconcern/condarepo/pkg/errors"

var (
	// ErrMalformedIndex indicates that an index document, or a package metadata value,
	// is not a well-formed object of the expected shape
	ErrMalformedIndex = errors.New("malformed index")

	// ErrInvalidPackageName indicates a package filename that ends with neither .tar.bz2 nor .conda
	ErrInvalidPackageName = errors.New("invalid package name")

	// ErrIOFailure indicates a read or write fault on the underlying streams.
	//
	// Output already flushed is not retracted: the destination is in an indeterminate state.
	ErrIOFailure = errors.New("index I/O failure")
)
