// Copyright © 2018 One Concern

package gcs

import (
	"strings"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/condarepo/pkg/errors"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"google.golang.org/api/googleapi"
)

func apiErrors(err *googleapi.Error) error {
	switch err.Code {
	case 400:
		if strings.Contains(err.Body, "bucket is not valid") {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case 401:
		return status.ErrUnauthorized.Wrap(err)
	case 403:
		return status.ErrForbidden.Wrap(err)
	case 404:
		return status.ErrNotFound.Wrap(err)
	case 412:
		// failed DoesNotExist precondition
		return status.ErrExists.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

// toSentinelErrors returns sentinel errors defined by the status package
func toSentinelErrors(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gcsStorage.ErrObjectNotExist) {
		return status.ErrNotExists.Wrap(err)
	}
	var typedErr *googleapi.Error
	if errors.As(err, &typedErr) {
		return apiErrors(typedErr)
	}
	return err
}
