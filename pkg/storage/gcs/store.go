// Copyright © 2018 One Concern

// Package gcs implements a storage.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"io"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcs struct {
	client         *gcsStorage.Client
	readOnlyClient *gcsStorage.Client
	bucket         string
	credFile       string
	l              *zap.Logger
}

// New GCS store. Credentials are taken from credentialFile when not empty, or
// from the environment (GOOGLE_APPLICATION_CREDENTIALS).
func New(ctx context.Context, bucket, credentialFile string, opts ...Option) (storage.Store, error) {
	googleStore := &gcs{
		bucket:   bucket,
		credFile: credentialFile,
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(googleStore)
	}
	if bucket == "" {
		return nil, status.ErrInvalidResource.WrapMessage("bucket is required")
	}

	var err error
	googleStore.readOnlyClient, err = gcsStorage.NewClient(ctx, googleStore.clientOptions(gcsStorage.ScopeReadOnly)...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	googleStore.client, err = gcsStorage.NewClient(ctx, googleStore.clientOptions(gcsStorage.ScopeFullControl)...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return googleStore, nil
}

func (g *gcs) clientOptions(scope string) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(scope)}
	if g.credFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.credFile))
	}
	return opts
}

func (g *gcs) String() string {
	return "gcs://" + g.bucket
}

func (g *gcs) Has(ctx context.Context, objectName string) (bool, error) {
	_, err := g.readOnlyClient.Bucket(g.bucket).Object(storage.CleanKey(objectName)).Attrs(ctx)
	if err != nil {
		if err == gcsStorage.ErrObjectNotExist {
			return false, nil
		}
		return false, toSentinelErrors(err)
	}
	return true, nil
}

func (g *gcs) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	objectReader, err := g.readOnlyClient.Bucket(g.bucket).Object(storage.CleanKey(objectName)).NewReader(ctx)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return objectReader, nil
}

func (g *gcs) Put(ctx context.Context, objectName string, reader io.Reader, exclusive bool) error {
	object := g.client.Bucket(g.bucket).Object(storage.CleanKey(objectName))
	if exclusive {
		object = object.If(gcsStorage.Conditions{DoesNotExist: true})
	}
	// a canceled context aborts the upload: the object is not created
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := object.NewWriter(ctx)
	if _, err := io.Copy(writer, reader); err != nil {
		cancel()
		_ = writer.Close()
		return toSentinelErrors(err)
	}
	return toSentinelErrors(writer.Close())
}

func (g *gcs) Delete(ctx context.Context, objectName string) error {
	err := g.client.Bucket(g.bucket).Object(storage.CleanKey(objectName)).Delete(ctx)
	if err == gcsStorage.ErrObjectNotExist {
		return nil
	}
	return toSentinelErrors(err)
}

// Move copies the object server side, then deletes the source
func (g *gcs) Move(ctx context.Context, from, to string) error {
	bucket := g.client.Bucket(g.bucket)
	source := bucket.Object(storage.CleanKey(from))
	if _, err := bucket.Object(storage.CleanKey(to)).CopierFrom(source).Run(ctx); err != nil {
		return toSentinelErrors(err)
	}
	if err := source.Delete(ctx); err != nil && err != gcsStorage.ErrObjectNotExist {
		g.l.Warn("source object left behind after copy", zap.String("key", from), zap.Error(err))
	}
	return nil
}

func (g *gcs) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.readOnlyClient.Bucket(g.bucket).Objects(ctx, &gcsStorage.Query{Prefix: storage.CleanKey(prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, toSentinelErrors(err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
