// Copyright © 2018 One Concern

package sthree

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/condarepo/pkg/errors"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testBucket = "conda-channel"

type S3Mock struct {
	s3iface.S3API
	mock.Mock
}

func (m *S3Mock) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Key))
	return &s3.HeadObjectOutput{}, args.Error(0)
}

func (m *S3Mock) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Key))
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(args.String(0)))}, nil
}

func (m *S3Mock) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func (m *S3Mock) CopyObjectWithContext(_ aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	args := m.Called(aws.StringValue(in.CopySource), aws.StringValue(in.Key))
	return &s3.CopyObjectOutput{}, args.Error(0)
}

func (m *S3Mock) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	args := m.Called(aws.StringValue(in.Prefix))
	for i, page := range args.Get(0).([][]string) {
		out := &s3.ListObjectsV2Output{}
		for _, key := range page {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(key)})
		}
		if !fn(out, i == len(args.Get(0).([][]string))-1) {
			break
		}
	}
	return args.Error(1)
}

func notFound(code string) error {
	return awserr.NewRequestFailure(awserr.New(code, "not found", nil), 404, "req-1")
}

func setupStore(t testing.TB) (storage.Store, *S3Mock) {
	m := &S3Mock{}
	bs, err := New(Bucket(testBucket), Client(m))
	require.NoError(t, err)
	return bs, m
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Client(&S3Mock{}))
	assert.True(t, errors.Is(err, status.ErrInvalidResource))
}

func TestHas(t *testing.T) {
	bs, m := setupStore(t)
	m.On("HeadObjectWithContext", "noarch/repodata.json").Return(nil)
	m.On("HeadObjectWithContext", "osx-64/repodata.json").Return(notFound("NotFound"))
	m.On("HeadObjectWithContext", "denied").Return(awserr.NewRequestFailure(awserr.New("AccessDenied", "no", nil), 403, "req-2"))

	has, err := bs.Has(context.Background(), "/noarch/repodata.json")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = bs.Has(context.Background(), "osx-64/repodata.json")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = bs.Has(context.Background(), "denied")
	assert.True(t, errors.Is(err, status.ErrForbidden))
}

func TestGet(t *testing.T) {
	bs, m := setupStore(t)
	m.On("GetObjectWithContext", "noarch/repodata.json").Return(`{}`, nil)
	m.On("GetObjectWithContext", "missing").Return("", notFound("NoSuchKey"))

	rdr, err := bs.Get(context.Background(), "noarch/repodata.json")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))

	_, err = bs.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, status.ErrNotExists))
}

func TestPutExclusive(t *testing.T) {
	bs, m := setupStore(t)
	m.On("HeadObjectWithContext", "noarch/repodata.json").Return(nil)

	err := bs.Put(context.Background(), "noarch/repodata.json", strings.NewReader("{}"), storage.NoOverWrite)
	assert.True(t, errors.Is(err, status.ErrExists))
}

func TestMove(t *testing.T) {
	bs, m := setupStore(t)
	m.On("CopyObjectWithContext", "conda-channel%2Fnoarch%2Frepodata.json.tmp", "noarch/repodata.json").Return(nil)
	m.On("DeleteObjectWithContext", "noarch/repodata.json.tmp").Return(nil)
	m.On("CopyObjectWithContext", "conda-channel%2Fmissing", "elsewhere").Return(notFound("NoSuchKey"))

	require.NoError(t, bs.Move(context.Background(), "noarch/repodata.json.tmp", "noarch/repodata.json"))
	m.AssertCalled(t, "DeleteObjectWithContext", "noarch/repodata.json.tmp")

	err := bs.Move(context.Background(), "missing", "elsewhere")
	assert.True(t, errors.Is(err, status.ErrNotExists))
}

func TestDelete(t *testing.T) {
	bs, m := setupStore(t)
	m.On("DeleteObjectWithContext", "gone").Return(notFound("NoSuchKey"))
	assert.NoError(t, bs.Delete(context.Background(), "gone"))
}

func TestKeys(t *testing.T) {
	bs, m := setupStore(t)
	m.On("ListObjectsV2PagesWithContext", "linux-64/").Return([][]string{
		{"linux-64/a.conda", "linux-64/b.conda"},
		{"linux-64/repodata.json"},
	}, nil)

	keys, err := bs.Keys(context.Background(), "linux-64/")
	require.NoError(t, err)
	assert.Equal(t, []string{"linux-64/a.conda", "linux-64/b.conda", "linux-64/repodata.json"}, keys)
	assert.Equal(t, "s3@conda-channel", bs.String())
}

func TestToSentinelErrors(t *testing.T) {
	for _, toPin := range []struct {
		err      error
		expected error
	}{
		{err: awserr.NewRequestFailure(awserr.New("InvalidBucketName", "", nil), 400, ""), expected: status.ErrInvalidResource},
		{err: awserr.NewRequestFailure(awserr.New("BadDigest", "", nil), 400, ""), expected: status.ErrStorageAPI},
		{err: awserr.NewRequestFailure(awserr.New("Unauthorized", "", nil), 401, ""), expected: status.ErrUnauthorized},
		{err: notFound("NoSuchBucket"), expected: status.ErrNotFound},
		{err: awserr.NewRequestFailure(awserr.New("PreconditionFailed", "", nil), 412, ""), expected: status.ErrExists},
		{err: awserr.NewRequestFailure(awserr.New("SlowDown", "", nil), 503, ""), expected: status.ErrStorageAPI},
	} {
		tc := toPin
		assert.True(t, errors.Is(toSentinelErrors(tc.err), tc.expected), "%v", tc.err)
	}
	assert.Nil(t, toSentinelErrors(nil))
}
