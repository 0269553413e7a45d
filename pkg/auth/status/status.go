// Copyright © 2018 One Concern

// Package status declares error constants returned by the various
// implementations of the Users interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/auth and its callers.
package status

import "github.com/oneconcern/condarepo/pkg/errors"

var (
	// Sentinel errors returned by implementations of interfaces defined by auth

	// ErrInvalidCredentials indicates that the credentials passed are invalid
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials indicates that the request carries no credentials
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidHash indicates a password hash which is not a bcrypt hash
	ErrInvalidHash = errors.New("invalid password hash")
)
