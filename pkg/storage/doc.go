// Copyright © 2018 One Concern

// Package storage provides interface to handle backend storage objects.
//
// This package supports the following backends:
//   - GCS (Google)
//   - S3 (AWS, minio)
//   - local file system
//   - embedded badger database
package storage
