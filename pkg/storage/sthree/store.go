// Copyright © 2018 One Concern

// Package sthree implements a storage.Store on AWS S3 or any S3 compatible service, such as minio.
package sthree

import (
	"context"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"go.uber.org/zap"
)

// PageSize of object listings
const PageSize = 1000

// Option for the S3 store
type Option func(*s3FS)

// Bucket holding the channel
func Bucket(bucket string) Option {
	return func(fs *s3FS) {
		fs.bucket = bucket
	}
}

// AWSConfig overrides the default AWS configuration, e.g. to set a minio endpoint
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		fs.awsConfig = cfg
	}
}

// Client injects an S3 API client
func Client(client s3iface.S3API) Option {
	return func(fs *s3FS) {
		fs.s3 = client
	}
}

// Logger for the store
func Logger(l *zap.Logger) Option {
	return func(fs *s3FS) {
		if l != nil {
			fs.l = l
		}
	}
}

// New S3 store
func New(option Option, options ...Option) (storage.Store, error) {
	fs := &s3FS{l: zap.NewNop()}
	option(fs)
	for _, apply := range options {
		apply(fs)
	}
	if fs.bucket == "" {
		return nil, status.ErrInvalidResource.WrapMessage("bucket is required")
	}

	if fs.s3 == nil {
		sess, err := session.NewSession(fs.awsConfig)
		if err != nil {
			return nil, status.ErrStorageAPI.Wrap(err)
		}
		fs.s3 = s3.New(sess)
	}
	fs.uploader = s3manager.NewUploaderWithClient(fs.s3)
	return fs, nil
}

type s3FS struct {
	bucket    string
	awsConfig *aws.Config
	s3        s3iface.S3API
	uploader  *s3manager.Uploader
	l         *zap.Logger
}

func (s *s3FS) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.CleanKey(key)),
	})
	if err != nil {
		if err = filterErrNotExists(toSentinelErrors(err)); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *s3FS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.CleanKey(key)),
	})
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return obj.Body, nil
}

// Put uploads an object. S3 offers no create-only upload: with exclusive set,
// existence is checked before the upload starts.
func (s *s3FS) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	key = storage.CleanKey(key)
	if exclusive {
		has, err := s.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.WrapMessage(key)
		}
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   rdr,
	})
	return toSentinelErrors(err)
}

func (s *s3FS) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.CleanKey(key)),
	})
	return filterErrNotExists(toSentinelErrors(err))
}

// Move copies the object server side, then deletes the source
func (s *s3FS) Move(ctx context.Context, from, to string) error {
	from, to = storage.CleanKey(from), storage.CleanKey(to)
	_, err := s.s3.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + from)),
		Key:        aws.String(to),
	})
	if err != nil {
		return toSentinelErrors(err)
	}
	if err = s.Delete(ctx, from); err != nil {
		s.l.Warn("source object left behind after copy", zap.String("key", from), zap.Error(err))
	}
	return nil
}

func (s *s3FS) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	eachPage := func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if key := aws.StringValue(obj.Key); key != "" {
				keys = append(keys, key)
			}
		}
		return true
	}
	params := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(storage.CleanKey(prefix)),
		MaxKeys: aws.Int64(PageSize),
	}
	if err := s.s3.ListObjectsV2PagesWithContext(ctx, params, eachPage); err != nil {
		return nil, toSentinelErrors(err)
	}
	return keys, nil
}

func (s *s3FS) String() string {
	return "s3@" + s.bucket
}
