// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"strings"
)

const (
	// OverWrite lets Put replace an existing object
	OverWrite = false

	// NoOverWrite makes Put fail with status.ErrExists when the object exists
	NoOverWrite = true
)

// Store implementations know how to write objects to a K/V model.
//
// Typically this is something file system-like: S3, GCS, local FS, an embedded KV...
// Keys are slash-separated relative paths such as "linux-64/repodata.json".
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error

	// Move renames an object, replacing any object at the destination
	Move(ctx context.Context, from, to string) error

	// Keys lists the objects under a prefix, in lexical order
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CleanKey normalizes a key: no leading slash and no empty path element
func CleanKey(key string) string {
	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
