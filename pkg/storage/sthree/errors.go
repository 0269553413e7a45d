// Copyright © 2018 One Concern

package sthree

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/oneconcern/condarepo/pkg/errors"
	"github.com/oneconcern/condarepo/pkg/storage/status"
)

func filterErrNotExists(err error) error {
	if errors.Is(err, status.ErrNotExists) || errors.Is(err, status.ErrNotFound) {
		return nil
	}
	return err
}

func apiErrors(err awserr.RequestFailure) error {
	// https://docs.aws.amazon.com/sdk-for-go/api/aws/awserr/#RequestFailure
	switch err.StatusCode() {
	case 400:
		if err.Code() == "InvalidBucketName" {
			return status.ErrInvalidResource.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case 401:
		return status.ErrUnauthorized.Wrap(err)
	case 403:
		return status.ErrForbidden.Wrap(err)
	case 404:
		switch err.Code() {
		case "NoSuchKey", "NotFound": // NotFound is produced by minio and on HEAD requests
			return status.ErrNotExists.Wrap(err)
		default:
			return status.ErrNotFound.Wrap(err)
		}
	case 412:
		return status.ErrExists.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

// toSentinelErrors maps S3 errors to the sentinels of the status package.
//
// See: https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
func toSentinelErrors(err error) error {
	if err == nil {
		return nil
	}
	var awsErr awserr.RequestFailure
	if errors.As(err, &awsErr) {
		return apiErrors(awsErr)
	}
	return err
}
