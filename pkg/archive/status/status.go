// Copyright © 2018 One Concern

// Package status declares error constants returned when reading package archives.
package status

import "github.com/oneconcern/condarepo/pkg/errors"

var (
	// ErrInvalidArchive indicates that a package archive cannot be read
	ErrInvalidArchive = errors.New("invalid package archive")

	// ErrNoIndex indicates a package archive without info/index.json
	ErrNoIndex = errors.New("illegal conda package: info/index.json file not found")

	// ErrUnsupported indicates a file which is not a conda package
	ErrUnsupported = errors.New("unsupported package format")
)
