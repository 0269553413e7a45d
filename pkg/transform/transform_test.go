// Copyright © 2018 One Concern

package transform

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/condarepo/pkg/repodata"
	repostatus "github.com/oneconcern/condarepo/pkg/repodata/status"
	"github.com/oneconcern/condarepo/pkg/storage"
	"github.com/oneconcern/condarepo/pkg/storage/localfs"
	"github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexKey = "linux-64/repodata.json"

func setupStore(t testing.TB, content map[string]string) storage.Store {
	t.Helper()
	bs := localfs.New(afero.NewMemMapFs())
	for key, value := range content {
		require.NoError(t, bs.Put(context.Background(), key, strings.NewReader(value), storage.NoOverWrite))
	}
	return bs
}

func readString(t testing.TB, bs storage.Store, key string) string {
	t.Helper()
	rdr, err := bs.Get(context.Background(), key)
	require.NoError(t, err)
	defer rdr.Close()
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	return string(b)
}

func requireKeys(t testing.TB, bs storage.Store, expected ...string) {
	t.Helper()
	keys, err := bs.Keys(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, expected, keys, "temporary objects should be promoted or removed")
}

func testBatch(t testing.TB, pairs ...string) *repodata.Batch {
	b := repodata.NewBatch()
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, b.Add(pairs[i], []byte(pairs[i+1])))
	}
	return b
}

func TestMergeAbsentKey(t *testing.T) {
	bs := setupStore(t, nil)
	tr := New(bs)

	require.NoError(t, tr.Merge(context.Background(), indexKey, testBatch(t, "c-1.0.tar.bz2", `{"sha256":"H3"}`)))
	assert.Equal(t, `{"packages":{"c-1.0.tar.bz2":{"sha256":"H3"}},"packages.conda":{}}`, readString(t, bs, indexKey))
	requireKeys(t, bs, indexKey)
}

func TestMergePresentKey(t *testing.T) {
	bs := setupStore(t, map[string]string{
		indexKey: `{"packages":{"a-1.0.tar.bz2":{"sha256":"H1","size":10}}}`,
	})
	tr := New(bs, WithBufferSize(16), IndexOptions(repodata.WithIndent(1)))

	require.NoError(t, tr.Merge(context.Background(), indexKey, testBatch(t, "a-1.0.tar.bz2", `{"sha256":"H1","size":99}`)))
	assert.Equal(t, "{\n \"packages\": {\n  \"a-1.0.tar.bz2\": {\n   \"sha256\": \"H1\",\n   \"size\": 99\n  }\n }\n}", readString(t, bs, indexKey))
	requireKeys(t, bs, indexKey)
}

func TestRemove(t *testing.T) {
	bs := setupStore(t, map[string]string{
		indexKey: `{"packages":{"a-1.0.tar.bz2":{"sha256":"H1"}},"packages.conda":{"b-1.0.conda":{"sha256":"H2"}}}`,
	})
	tr := New(bs)

	require.NoError(t, tr.Remove(context.Background(), indexKey, repodata.NewChecksums("H1")))
	assert.Equal(t, `{"packages":{},"packages.conda":{"b-1.0.conda":{"sha256":"H2"}}}`, readString(t, bs, indexKey))

	err := tr.Remove(context.Background(), "noarch/repodata.json", repodata.NewChecksums("H1"))
	assert.True(t, errors.Is(err, status.ErrNotExists))
	requireKeys(t, bs, indexKey)
}

func TestLargeDocument(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"packages":{`)
	for i := 0; i < 5000; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"pkg-` + strings.Repeat("x", i%50) + `-` + time.Duration(i).String() + `.tar.bz2":{"sha256":"s","depends":["python >=3.8"]}`)
	}
	b.WriteString(`}}`)
	doc := b.String()

	bs := setupStore(t, map[string]string{indexKey: doc})
	require.NoError(t, New(bs, WithBufferSize(512)).Remove(context.Background(), indexKey, repodata.NewChecksums("none")))
	assert.Equal(t, doc, readString(t, bs, indexKey))
}

func TestEditFailure(t *testing.T) {
	original := `{"packages":{"a.tar.bz2":{"sha256":"H1"}}}`
	bs := setupStore(t, map[string]string{indexKey: original})
	tr := New(bs)

	boom := errors.New("boom")
	err := tr.Apply(context.Background(), indexKey, func(existing io.Reader, out io.Writer) error {
		_, _ = io.WriteString(out, `{"partial":`)
		return boom
	})
	assert.Equal(t, boom, err, "edit errors are returned unmodified")
	assert.Equal(t, original, readString(t, bs, indexKey))
	requireKeys(t, bs, indexKey)
}

func TestMalformedDocument(t *testing.T) {
	bs := setupStore(t, map[string]string{indexKey: `{"packages":[]}`})
	err := New(bs).Merge(context.Background(), indexKey, testBatch(t, "a.tar.bz2", `{}`))
	assert.True(t, errors.Is(err, repostatus.ErrMalformedIndex))
	assert.Equal(t, `{"packages":[]}`, readString(t, bs, indexKey))
	requireKeys(t, bs, indexKey)
}

func TestEditStopsReading(t *testing.T) {
	doc := `{"packages":{` + strings.Repeat(`"a.tar.bz2":{"sha256":"H1"},`, 10000) + `"b.tar.bz2":{}}}`
	bs := setupStore(t, map[string]string{indexKey: doc})

	err := New(bs, WithBufferSize(64)).Apply(context.Background(), indexKey, func(existing io.Reader, out io.Writer) error {
		head := make([]byte, 10)
		if _, err := io.ReadFull(existing, head); err != nil {
			return err
		}
		_, err := out.Write(head)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, doc[:10], readString(t, bs, indexKey))
}

// failingStore fails reads or writes of the index document
type failingStore struct {
	storage.Store
	readErr  error
	writeErr error
}

type failingReader struct {
	io.Reader
	err error
}

func (f failingReader) Read(p []byte) (int, error) {
	n, err := f.Reader.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func (f *failingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rdr, err := f.Store.Get(ctx, key)
	if err != nil || f.readErr == nil {
		return rdr, err
	}
	return io.NopCloser(failingReader{Reader: io.LimitReader(rdr, 20), err: f.readErr}), nil
}

func (f *failingStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	if f.writeErr != nil {
		_, _ = io.CopyN(io.Discard, rdr, 5)
		return f.writeErr
	}
	return f.Store.Put(ctx, key, rdr, exclusive)
}

func TestStoreReadFailure(t *testing.T) {
	original := `{"packages":{"a.tar.bz2":{"sha256":"H1"},"b.tar.bz2":{"sha256":"H2"}}}`
	base := setupStore(t, map[string]string{indexKey: original})
	boom := errors.New("connection reset")
	bs := &failingStore{Store: base, readErr: boom}

	err := New(bs).Remove(context.Background(), indexKey, repodata.NewChecksums("H1"))
	assert.Equal(t, boom, err, "store errors are returned unmodified")
	assert.Equal(t, original, readString(t, base, indexKey))
	requireKeys(t, base, indexKey)
}

func TestStoreWriteFailure(t *testing.T) {
	original := `{"packages":{"a.tar.bz2":{"sha256":"H1"}}}`
	base := setupStore(t, map[string]string{indexKey: original})
	bs := &failingStore{Store: base, writeErr: status.ErrForbidden}

	err := New(bs).Merge(context.Background(), indexKey, testBatch(t, "b.conda", `{"sha256":"H2"}`))
	assert.Equal(t, status.ErrForbidden, err)
	assert.Equal(t, original, readString(t, base, indexKey))
}

func TestCancel(t *testing.T) {
	bs := setupStore(t, map[string]string{indexKey: `{"packages":{}}`})
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- New(bs).Apply(ctx, indexKey, func(existing io.Reader, out io.Writer) error {
			close(started)
			for {
				if _, err := out.Write([]byte(strings.Repeat(" ", 1024))); err != nil {
					return err
				}
			}
		})
	}()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("transform did not stop on cancellation")
	}
	assert.Equal(t, `{"packages":{}}`, readString(t, bs, indexKey))
	requireKeys(t, bs, indexKey)
}

func TestSerializedPerKey(t *testing.T) {
	bs := setupStore(t, nil)
	tr := New(bs)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, tr.Merge(context.Background(), indexKey, testBatch(t, name+"-1.0.conda", `{"sha256":"`+name+`"}`)))
		}(name)
	}
	wg.Wait()

	var names []string
	rdr, err := bs.Get(context.Background(), indexKey)
	require.NoError(t, err)
	defer rdr.Close()
	require.NoError(t, repodata.Walk(rdr, func(e repodata.Entry) bool {
		names = append(names, e.Filename)
		return true
	}))
	assert.Len(t, names, 8, "no merge is lost")
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("a")
	unlockB := k.lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		k.lock("a")()
	}()
	select {
	case <-acquired:
		t.Fatal("lock on the same key should wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
	assert.Empty(t, k.locks)
}
